package embeddednats

import (
	"context"
	"time"

	"energy-crm/pkg/shared"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Port 0 lets the server pick a free port; ClientURL reports it.
	Port            int
	DataDir         string
	MaxMemory       int64
	MaxFileStore    int64
	JetStreamDomain string
}

type EmbeddedNATS struct {
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	config  *Config
	streams map[string]*StreamConfig
	log     *logrus.Entry
}

type StreamConfig struct {
	Name            string
	Subjects        []string
	Retention       nats.RetentionPolicy
	MaxMsgs         int64
	MaxBytes        int64
	MaxAge          time.Duration
	MaxMsgSize      int32
	Replicas        int
	DuplicateWindow time.Duration
	AllowDirect     bool
	DiscardPolicy   nats.DiscardPolicy
}

func DefaultConfig() *Config {
	return &Config{
		Port:            4222,
		DataDir:         "./data/nats",
		MaxMemory:       64 * 1024 * 1024,  // 64MB
		MaxFileStore:    512 * 1024 * 1024, // 512MB
		JetStreamDomain: "crm",
	}
}

func New(cfg *Config, log *logrus.Entry) *EmbeddedNATS {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &EmbeddedNATS{
		config:  cfg,
		streams: make(map[string]*StreamConfig),
		log:     log.WithField("component", "nats"),
	}
}

func (en *EmbeddedNATS) Start() error {
	port := en.config.Port
	if port == 0 {
		port = server.RANDOM_PORT
	}
	opts := &server.Options{
		Host:               "127.0.0.1",
		Port:               port,
		JetStream:          true,
		StoreDir:           en.config.DataDir,
		JetStreamMaxMemory: en.config.MaxMemory,
		JetStreamMaxStore:  en.config.MaxFileStore,
		JetStreamDomain:    en.config.JetStreamDomain,
		NoSigs:             true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return errors.Wrap(err, "failed to create NATS server")
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return errors.New("NATS server not ready for connections")
	}

	en.server = ns

	if err := en.connect(); err != nil {
		return errors.Wrap(err, "failed to connect to embedded NATS")
	}

	en.log.WithField("url", ns.ClientURL()).Info("embedded NATS server started")
	return nil
}

func (en *EmbeddedNATS) connect() error {
	nc, err := nats.Connect(en.server.ClientURL(),
		nats.Name("energy-crm"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			en.log.WithError(err).Error("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				en.log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			en.log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to connect to NATS")
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return errors.Wrap(err, "failed to create JetStream context")
	}

	en.nc = nc
	en.js = js
	return nil
}

// ClientURL is empty until Start succeeds.
func (en *EmbeddedNATS) ClientURL() string {
	if en.server == nil {
		return ""
	}
	return en.server.ClientURL()
}

func (en *EmbeddedNATS) AddStream(streamConfig *StreamConfig) error {
	if en.js == nil {
		return errors.New("JetStream not initialized")
	}

	config := &nats.StreamConfig{
		Name:        streamConfig.Name,
		Subjects:    streamConfig.Subjects,
		Retention:   streamConfig.Retention,
		MaxMsgs:     streamConfig.MaxMsgs,
		MaxBytes:    streamConfig.MaxBytes,
		MaxAge:      streamConfig.MaxAge,
		MaxMsgSize:  streamConfig.MaxMsgSize,
		Replicas:    streamConfig.Replicas,
		Duplicates:  streamConfig.DuplicateWindow,
		AllowDirect: streamConfig.AllowDirect,
		Discard:     streamConfig.DiscardPolicy,
	}

	log := en.log.WithField("stream", streamConfig.Name)
	if _, err := en.js.StreamInfo(streamConfig.Name); err == nil {
		if _, err := en.js.UpdateStream(config); err != nil {
			return errors.Wrapf(err, "failed to update stream %s", streamConfig.Name)
		}
		log.Debug("updated existing stream")
	} else {
		if _, err := en.js.AddStream(config); err != nil {
			return errors.Wrapf(err, "failed to add stream %s", streamConfig.Name)
		}
		log.WithField("subjects", streamConfig.Subjects).Info("created stream")
	}

	en.streams[streamConfig.Name] = streamConfig
	return nil
}

// CreateCRMStreams declares the case event stream.
func (en *EmbeddedNATS) CreateCRMStreams() error {
	return en.AddStream(&StreamConfig{
		Name:            shared.StreamCases,
		Subjects:        []string{shared.SubjectCasesAll},
		Retention:       nats.LimitsPolicy,
		MaxMsgs:         100000,
		MaxBytes:        128 * 1024 * 1024, // 128MB
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgSize:      1024 * 1024, // 1MB
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		AllowDirect:     true,
		DiscardPolicy:   nats.DiscardOld,
	})
}

// KeyValue opens bucket, creating it on first use.
func (en *EmbeddedNATS) KeyValue(bucket string) (nats.KeyValue, error) {
	if en.js == nil {
		return nil, errors.New("JetStream not initialized")
	}

	kv, err := en.js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, errors.Wrapf(err, "failed to open bucket %s", bucket)
	}

	kv, err = en.js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create bucket %s", bucket)
	}
	en.log.WithField("bucket", bucket).Info("created key/value bucket")
	return kv, nil
}

func (en *EmbeddedNATS) PublishWithDedup(subject string, data []byte, msgID string) error {
	if en.js == nil {
		return errors.New("JetStream not initialized")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, msgID)

	if _, err := en.js.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", subject)
	}
	return nil
}

func (en *EmbeddedNATS) CreateDurableConsumer(streamName, consumerName string, filterSubject string) error {
	if en.js == nil {
		return errors.New("JetStream not initialized")
	}

	log := en.log.WithFields(logrus.Fields{"stream": streamName, "consumer": consumerName})
	if _, err := en.js.ConsumerInfo(streamName, consumerName); err == nil {
		log.Debug("durable consumer already exists")
		return nil
	}

	_, err := en.js.AddConsumer(streamName, &nats.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1000,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create consumer %s", consumerName)
	}

	log.Info("created durable consumer")
	return nil
}

func (en *EmbeddedNATS) JetStream() nats.JetStreamContext {
	return en.js
}

func (en *EmbeddedNATS) Shutdown(ctx context.Context) error {
	if en.nc != nil {
		en.nc.Close()
	}

	if en.server == nil {
		return nil
	}

	en.server.Shutdown()
	done := make(chan struct{})
	go func() {
		en.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for NATS shutdown")
	}
}

func (en *EmbeddedNATS) HealthCheck() error {
	if en.nc == nil {
		return errors.New("NATS connection not initialized")
	}

	if !en.nc.IsConnected() {
		return errors.New("NATS not connected")
	}

	if en.server != nil && !en.server.Running() {
		return errors.New("NATS server not running")
	}

	return nil
}
