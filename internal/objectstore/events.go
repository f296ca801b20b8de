package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/stats"
)

// EventSink is all any mutation path needs: enqueue the change record,
// delivery is someone else's problem.
type EventSink interface {
	Enqueue(ev *model.ObjectEvent) error
}

// Notifier is the EventSink implementation: it durably appends the event
// then makes a best-effort attempt to deliver it to every bucket
// notification config that matches, with a 5-second timeout and one
// retry. There is no durable delivery queue; outcomes are logged.
type Notifier struct {
	events  *repo.EventRepo
	buckets *repo.BucketRepo
	client  *http.Client
}

func NewNotifier(events *repo.EventRepo, buckets *repo.BucketRepo) *Notifier {
	return &Notifier{
		events:  events,
		buckets: buckets,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *Notifier) Enqueue(ev *model.ObjectEvent) error {
	if err := n.events.Append(ev); err != nil {
		return err
	}
	go n.deliver(ev)
	return nil
}

func (n *Notifier) deliver(ev *model.ObjectEvent) {
	b, err := n.buckets.GetByName(ev.BucketName)
	if err != nil {
		glog.Warningf("event %s: bucket %q vanished before delivery: %v", ev.EventID, ev.BucketName, err)
		return
	}
	delivered := false
	for _, nc := range b.NotificationConfigs {
		if !matchesConfig(nc, ev) {
			continue
		}
		if n.post(nc, ev) {
			delivered = true
		}
	}
	if delivered {
		if err := n.events.MarkDelivered(ev.EventID); err != nil {
			glog.Warningf("event %s: mark delivered: %v", ev.EventID, err)
		}
	}
}

func matchesConfig(nc model.NotificationConfig, ev *model.ObjectEvent) bool {
	if len(nc.EventTypes) > 0 {
		found := false
		for _, t := range nc.EventTypes {
			if t == string(ev.EventType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if nc.ObjectNamePrefix != "" && !strings.HasPrefix(ev.ObjectName, nc.ObjectNamePrefix) {
		return false
	}
	return true
}

func (n *Notifier) post(nc model.NotificationConfig, ev *model.ObjectEvent) bool {
	payload, _ := json.Marshal(ev)
	attempt := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, nc.WebhookURL, bytes.NewReader(payload))
		if err != nil {
			glog.Warningf("event %s: build webhook request: %v", ev.EventID, err)
			return false
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.Do(req)
		if err != nil {
			glog.Warningf("event %s: webhook delivery to %s failed: %v", ev.EventID, nc.WebhookURL, err)
			return false
		}
		defer resp.Body.Close()
		ok := resp.StatusCode >= 200 && resp.StatusCode < 300
		if !ok {
			glog.Warningf("event %s: webhook %s responded %d", ev.EventID, nc.WebhookURL, resp.StatusCode)
		}
		return ok
	}
	if attempt() {
		stats.EventsDelivered.WithLabelValues("ok").Inc()
		return true
	}
	if attempt() { // one retry, best-effort
		stats.EventsDelivered.WithLabelValues("ok").Inc()
		return true
	}
	stats.EventsDelivered.WithLabelValues("failed").Inc()
	return false
}

func mustNotNil(sink EventSink) EventSink {
	if sink == nil {
		return noopSink{}
	}
	return sink
}

type noopSink struct{}

func (noopSink) Enqueue(*model.ObjectEvent) error { return nil }
