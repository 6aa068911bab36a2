package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/storage"
)

// Publishes to subjects below a prefix:
//
//	<prefix>.timetable.<route>.<station>
//	<prefix>.dataset.reloaded
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	logger      *slog.Logger
	metrics     PublisherMetrics
	timeNow     func() time.Time
}

func NewNATSPublisher(
	url string,
	prefix string,
	logSubjects bool,
	logger *slog.Logger,
	m PublisherMetrics,
) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("timetable"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	return &NATSPublisher{
		nc:          nc,
		prefix:      prefix,
		logSubjects: logSubjects,
		logger:      logger,
		metrics:     m,
		timeNow:     time.Now,
	}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) PublishTimetable(tt *timetable.Timetable) error {
	return p.publish(
		TimetableSubject(p.prefix, tt.RouteID, tt.Station),
		NewTimetableMessage(tt, p.timeNow()),
	)
}

func (p *NATSPublisher) PublishReload(metadata *storage.DatasetMetadata) error {
	return p.publish(ReloadSubject(p.prefix), NewReloadMessage(metadata))
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", slog.String("subject", subject))
	}

	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

func TimetableSubject(prefix, routeID, station string) string {
	return fmt.Sprintf("%s.timetable.%s.%s", prefix, subjectToken(routeID), subjectToken(station))
}

func ReloadSubject(prefix string) string {
	return prefix + ".dataset.reloaded"
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
