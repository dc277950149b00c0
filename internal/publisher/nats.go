package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	logger      *slog.Logger
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, logger *slog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("line-topology"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
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
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, logger: logger, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// opHeader repeats PathChanged.Op so subscribers can filter without decoding.
const opHeader = "Topology-Op"

// Operations carried by PathChanged.
const (
	OpAttach = "attach"
	OpDetach = "detach"
	OpSplit  = "split"
	OpBridge = "bridge"
	OpDrop   = "drop"
)

// PathChanged is published after every committed change to a line path.
type PathChanged struct {
	EventID          string    `json:"eventId"`
	LineID           int64     `json:"lineId"`
	Op               string    `json:"op"`
	Timestamp        time.Time `json:"timestamp"`
	Stations         []int64   `json:"stations"`
	Orphaned         []int64   `json:"orphaned,omitempty"`
	TotalDistance    float64   `json:"totalDistance"`
	TotalElapsedTime float64   `json:"totalElapsedTime"`
}

// NewPathChanged stamps an event with a fresh id and the current time.
func NewPathChanged(lineID int64, op string, stations, orphaned []int64, distance, elapsed float64) PathChanged {
	return PathChanged{
		EventID:          uuid.NewString(),
		LineID:           lineID,
		Op:               op,
		Timestamp:        time.Now().UTC(),
		Stations:         stations,
		Orphaned:         orphaned,
		TotalDistance:    distance,
		TotalElapsedTime: elapsed,
	}
}

func (p *NATSPublisher) PublishPathChanged(msg PathChanged) error {
	subject := Subject(p.prefix, msg.LineID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", "subject", subject, "event", msg.EventID)
	}
	m := nats.NewMsg(subject)
	m.Data = b
	m.Header.Set(nats.MsgIdHdr, msg.EventID)
	m.Header.Set(opHeader, msg.Op)
	start := time.Now()
	err = p.nc.PublishMsg(m)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject returns "<prefix>.line.<lineID>".
func Subject(prefix string, lineID int64) string {
	return fmt.Sprintf("%s.line.%s", subjectToken(prefix), strconv.FormatInt(lineID, 10))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = strings.Trim(repl.Replace(s), ".")
	if s == "" {
		s = "_"
	}
	return s
}
