package notifier

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
)

// ErrInvalidURL is returned by Start when a configured URL cannot be used.
var ErrInvalidURL = errors.New("invalid notification URL")

// Sender delivers message to a single shoutrrr URL.
type Sender func(url, message string) error

// Validator checks that a shoutrrr URL names a known, well-formed service.
type Validator func(url string) error

func shoutrrrValidate(url string) error {
	_, err := shoutrrr.CreateSender(url)
	return err
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSender replaces shoutrrr.Send, mainly for tests.
func WithSender(s Sender) Option {
	return func(n *Notifier) {
		if s != nil {
			n.send = s
		}
	}
}

// WithValidator replaces the shoutrrr URL check done by Start.
func WithValidator(v Validator) Option {
	return func(n *Notifier) {
		if v != nil {
			n.validate = v
		}
	}
}

// WithThrottle suppresses repeat notifications for the same motion within d.
func WithThrottle(d time.Duration) Option {
	return func(n *Notifier) {
		n.throttle = d
	}
}

// Notifier sends a message to every configured URL when a run completes
type Notifier struct {
	eb       eventbus.Publisher
	rawURLs  []string
	urls     []string
	send     Sender
	validate Validator
	throttle time.Duration
	lastSent map[string]time.Time // per-motion throttling
	mu       sync.Mutex
	wg       sync.WaitGroup // tracks in-flight sends for clean shutdown
}

// NewNotifier creates a new notifier service for the given shoutrrr URLs.
// Discord and Slack webhook URLs are accepted as-is and converted.
func NewNotifier(eb eventbus.Publisher, urls []string, opts ...Option) *Notifier {
	n := &Notifier{
		eb:       eb,
		rawURLs:  urls,
		send:     shoutrrr.Send,
		validate: shoutrrrValidate,
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start validates the configured URLs and begins listening for completions.
// With no URLs configured it does nothing.
func (n *Notifier) Start() error {
	urls := make([]string, 0, len(n.rawURLs))
	for _, raw := range n.rawURLs {
		u, err := ConvertWebhookURL(raw)
		if err == nil {
			err = n.validate(u)
		}
		if err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidURL, redact(raw), err)
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		logger.Debugf("Notifier disabled: no URLs configured")
		return nil
	}

	n.mu.Lock()
	n.urls = urls
	n.mu.Unlock()

	n.eb.Subscribe(domain.MotionCompleted, n.handleCompleted)

	logger.Infof("Notifier started with %d destinations", len(urls))
	return nil
}

// Stop waits for in-flight sends to finish
func (n *Notifier) Stop() {
	n.wg.Wait()
}

// Destinations returns the number of URLs accepted by Start.
func (n *Notifier) Destinations() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.urls)
}

func (n *Notifier) handleCompleted(event domain.Event) {
	if !n.canSend(event.AggregateID) {
		logger.Debugf("Throttled notification for motion %s", event.AggregateID)
		return
	}
	message := FormatCompleted(event)

	n.mu.Lock()
	urls := append([]string(nil), n.urls...)
	n.mu.Unlock()

	for _, u := range urls {
		n.wg.Add(1)
		go func(u string) {
			defer n.wg.Done()
			n.sendNotification(u, event, message)
		}(u)
	}
}

func (n *Notifier) canSend(motionID string) bool {
	if n.throttle <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if last, ok := n.lastSent[motionID]; ok && now.Sub(last) < n.throttle {
		return false
	}
	n.lastSent[motionID] = now
	return true
}

func (n *Notifier) sendNotification(url string, event domain.Event, message string) {
	provider := ProviderLabel(url)
	data := map[string]interface{}{
		"provider":      provider,
		"trigger_event": string(event.EventType),
	}

	err := n.send(url, message)
	eventType := domain.NotificationSent
	if err != nil {
		logger.Errorf("Failed to send %s notification for motion %s: %v", provider, event.AggregateID, err)
		data["error"] = err.Error()
		eventType = domain.NotificationFailed
	} else {
		logger.Debugf("Sent %s notification for motion %s", provider, event.AggregateID)
	}

	if pubErr := n.eb.Publish(domain.NewMotionEvent(eventType, event.AggregateID, data)); pubErr != nil {
		logger.Errorf("Failed to publish %s event: %v", eventType, pubErr)
	}
}

// FormatCompleted renders the message sent for a MotionCompleted event.
func FormatCompleted(event domain.Event) string {
	value := event.GetFloat64Or("value", event.GetFloat64Or("to", 0))
	msg := fmt.Sprintf("Motion %s completed at %g", event.AggregateID, value)
	if event.GetBoolOr("finished", false) {
		msg += " (finished early)"
	}
	return msg
}

// redact drops credentials from a URL before it is logged or returned.
func redact(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "<malformed>"
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash] + "/***"
	}
	return scheme + "://" + rest
}
