package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/apointly/whatsapp-service/pkg/env"
	"github.com/apointly/whatsapp-service/pkg/log"
)

const deliveryLogCapacity = 256

type Config struct {
	Workers       int
	RetryLimit    int
	Secret        string
	AllowInsecure bool
	Enabled       bool
	Timeout       time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Workers:       env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4),
		RetryLimit:    env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3),
		Secret:        env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		AllowInsecure: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_INSECURE", false),
		Enabled:       env.GetEnvBoolOrDefault("WEBHOOKS_ENABLED", true),
		Timeout:       env.GetEnvDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
	}
}

// Engine delivers webhook events asynchronously through a worker pool.
// Delivery outcomes are kept in a bounded in-memory log.
type Engine struct {
	httpClient    *http.Client
	queue         chan *deliveryTask
	retryLimit    int
	secret        string
	allowInsecure bool
	enabled       bool

	logMu sync.Mutex
	logs  []DeliveryLog

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type deliveryTask struct {
	url   string
	event Event
}

func NewEngine() *Engine {
	return NewEngineWithConfig(ConfigFromEnv())
}

func NewEngineWithConfig(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		queue:         make(chan *deliveryTask, 1000),
		retryLimit:    cfg.RetryLimit,
		secret:        cfg.Secret,
		allowInsecure: cfg.AllowInsecure,
		enabled:       cfg.Enabled,
		ctx:           ctx,
		cancel:        cancel,
	}

	if cfg.Enabled {
		for i := 0; i < cfg.Workers; i++ {
			engine.wg.Add(1)
			go engine.worker()
		}
	}

	return engine
}

func (e *Engine) Shutdown() {
	e.cancel()
	close(e.queue)
	e.wg.Wait()
}

// Dispatch enqueues an event for the given URL. Delivery failures are retried
// a bounded number of times and never surfaced to the caller.
func (e *Engine) Dispatch(url string, event Event) {
	if !e.enabled || strings.TrimSpace(url) == "" {
		return
	}

	select {
	case e.queue <- &deliveryTask{url: url, event: event}:
	default:
		log.Session(event.SessionID).WithField("event_type", string(event.EventType)).Warn("Webhook queue full, dropping event")
	}
}

// Logs returns a snapshot of recent delivery outcomes, newest last.
func (e *Engine) Logs() []DeliveryLog {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	out := make([]DeliveryLog, len(e.logs))
	copy(out, e.logs)
	return out
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			e.deliver(task)
		}
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	if err := e.validateURL(task.url); err != nil {
		log.Session(task.event.SessionID).WithError(err).Warn("Rejected webhook URL")
		e.record(task, DeliveryFailed, 0, err.Error())
		return
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		log.Session(task.event.SessionID).WithError(err).Error("Failed to marshal webhook event")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, task.url, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			break
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Event", string(task.event.EventType))
		req.Header.Set("User-Agent", "Apointly-WhatsApp-Service/1.0")
		if e.secret != "" {
			signature := e.generateSignature(payload)
			req.Header.Set("X-Webhook-Signature", signature)
			req.Header.Set("X-Hub-Signature-256", signature)
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < e.retryLimit {
				time.Sleep(time.Duration(attempt*2) * time.Second)
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			e.record(task, DeliverySuccess, attempt, "")
			return
		}

		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		if attempt < e.retryLimit {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
	}

	errorMsg := ""
	if lastErr != nil {
		errorMsg = lastErr.Error()
	}
	log.Session(task.event.SessionID).WithField("event_type", string(task.event.EventType)).Warn("Webhook delivery failed: " + errorMsg)
	e.record(task, DeliveryFailed, e.retryLimit, errorMsg)
}

func (e *Engine) record(task *deliveryTask, status DeliveryStatus, attempts int, lastError string) {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	e.logs = append(e.logs, DeliveryLog{
		URL:          task.url,
		EventType:    task.event.EventType,
		Status:       status,
		AttemptCount: attempts,
		LastError:    lastError,
		Timestamp:    time.Now(),
	})
	if len(e.logs) > deliveryLogCapacity {
		e.logs = e.logs[len(e.logs)-deliveryLogCapacity:]
	}
}

func (e *Engine) generateSignature(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(e.secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (e *Engine) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if e.allowInsecure {
		return nil
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" || strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
