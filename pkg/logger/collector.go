package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest; the Kafka producer implements it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	Interval   time.Duration // flush period, default 30s
	MaxEntries int           // distinct entries that force an early flush, default 100
	Topic      string
	Publisher  Publisher
	MinLevel   string // "warn" keeps warnings too; anything else keeps errors only
	Service    string
}

// DigestEntry is one distinct (level, component, message) seen in a window.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Sample    map[string]interface{} `json:"sample,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"firstSeen"`
	LastSeen  time.Time              `json:"lastSeen"`
}

// Digest is the payload published per window, entries by count descending.
type Digest struct {
	Service string        `json:"service,omitempty"`
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	Entries []DigestEntry `json:"entries"`
}

// LogCollector folds repeated warnings and errors into periodic digests so a
// flapping upstream produces one message per window instead of thousands.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	entries map[string]*DigestEntry
	from    time.Time

	out    chan Digest
	stop   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[string]*DigestEntry),
		out:     make(chan Digest, 4),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if c.cfg.Interval <= 0 {
		c.cfg.Interval = 30 * time.Second
	}
	if c.cfg.MaxEntries <= 0 {
		c.cfg.MaxEntries = 100
	}
	c.from = c.now()

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, component, msg string, fields map[string]interface{}) {
	if level == "warn" && c.cfg.MinLevel != "warn" {
		return
	}
	now := c.now()
	key := level + "\x00" + component + "\x00" + msg

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &DigestEntry{
			Level: level, Component: component, Message: msg, Sample: fields,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	var d *Digest
	if len(c.entries) >= c.cfg.MaxEntries {
		d = c.cutLocked(now)
	}
	c.mu.Unlock()

	if d != nil {
		select {
		case c.out <- *d:
		default:
			fmt.Fprintf(os.Stderr, "log collector: digest queue full, dropped %d entries\n", len(d.Entries))
		}
	}
}

// Pending is the number of distinct entries in the open window.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close publishes what is left and stops the flusher.
func (c *LogCollector) Close() {
	c.closed.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

func (c *LogCollector) run() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case d := <-c.out:
			c.publish(d)
		case <-t.C:
			c.flush()
		case <-c.stop:
			for {
				select {
				case d := <-c.out:
					c.publish(d)
				default:
					c.flush()
					return
				}
			}
		}
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	d := c.cutLocked(c.now())
	c.mu.Unlock()
	if d != nil {
		c.publish(*d)
	}
}

func (c *LogCollector) cutLocked(now time.Time) *Digest {
	if len(c.entries) == 0 {
		c.from = now
		return nil
	}
	d := &Digest{Service: c.cfg.Service, From: c.from, To: now, Entries: make([]DigestEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		d.Entries = append(d.Entries, *e)
	}
	sort.Slice(d.Entries, func(i, j int) bool {
		if d.Entries[i].Count != d.Entries[j].Count {
			return d.Entries[i].Count > d.Entries[j].Count
		}
		return d.Entries[i].Message < d.Entries[j].Message
	})
	c.entries = make(map[string]*DigestEntry)
	c.from = now
	return d
}

func (c *LogCollector) publish(d Digest) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// the logger cannot log its own delivery failures
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, d); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish %s: %v\n", c.cfg.Topic, err)
	}
}
