package mqtt

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected   = errors.New("MQTT client not connected")
	ErrPublishTimeout = errors.New("MQTT publish timed out")
)

const (
	queueSize      = 64
	handoffTimeout = 5 * time.Second
)

// Config конфигурация MQTT канала
type Config struct {
	Broker         string        `mapstructure:"broker"`          // e.g. "tcp://localhost:1883"
	Username       string        `mapstructure:"username"`        // опционально
	Password       string        `mapstructure:"password"`        // опционально
	ClientID       string        `mapstructure:"client_id"`       // генерируется, если пусто
	CommandTopic   string        `mapstructure:"command_topic"`   // база для <base>/<device>/request|response
	DataTopic      string        `mapstructure:"data_topic"`      // база для <base>/<device> телеметрии
	StatusTopic    string        `mapstructure:"status_topic"`    // база для <base>/<device> статуса и heartbeat
	QoS            byte          `mapstructure:"qos"`             // 0, 1 или 2
	KeepAlive      int           `mapstructure:"keep_alive"`      // секунды
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // таймаут подключения
	Heartbeat      time.Duration `mapstructure:"heartbeat"`       // интервал heartbeat
}

// generateClientID генерирует случайный client id
func generateClientID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return "vehicle-agent-" + hex.EncodeToString(bytes)
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       generateClientID(),
		CommandTopic:   "vehicle/rpc",
		DataTopic:      "vehicle/telemetry",
		StatusTopic:    "vehicle/status",
		QoS:            1,
		KeepAlive:      60,
		ConnectTimeout: 10 * time.Second,
		Heartbeat:      60 * time.Second,
	}
}

// Handler отвечает на входящий RPC запрос
type Handler func(payload []byte) []byte

// Ack возвращается из Attach
type Ack struct {
	Heartbeat time.Duration
	Timestamp int64
}

// attachRecord retained сообщение о статусе устройства
type attachRecord struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Status    string `json:"status"`
	Heartbeat int    `json:"heartbeat"`
	Timestamp int64  `json:"timestamp"`
}

// heartbeatMessage периодическое событие heartbeat
type heartbeatMessage struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// Client подключает устройство к брокеру, передает входящие запросы
// обработчику и публикует ответы и телеметрию
type Client struct {
	config     Config
	mqttClient mqttLib.Client
	handler    Handler
	handlerMu  sync.RWMutex
	requests   chan []byte
	responses  chan []byte
	attached   atomic.Bool
	loopsOnce  sync.Once
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *slog.Logger
	deviceID   string
	label      string
	now        func() time.Time
	newClient  func(*mqttLib.ClientOptions) mqttLib.Client
}

// NewClient создает клиента; для работы вызовите Bind и Attach
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.ClientID == "" {
		config.ClientID = generateClientID()
	}
	return &Client{
		config:    config,
		requests:  make(chan []byte, queueSize),
		responses: make(chan []byte, queueSize),
		stopChan:  make(chan struct{}),
		logger:    logger,
		now:       time.Now,
		newClient: mqttLib.NewClient,
	}
}

// Bind устанавливает обработчик входящих запросов
func (c *Client) Bind(handler Handler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

func (c *Client) requestTopic() string {
	return fmt.Sprintf("%s/%s/request", c.config.CommandTopic, c.deviceID)
}

func (c *Client) responseTopic() string {
	return fmt.Sprintf("%s/%s/response", c.config.CommandTopic, c.deviceID)
}

func (c *Client) dataTopic() string {
	return fmt.Sprintf("%s/%s", c.config.DataTopic, c.deviceID)
}

func (c *Client) statusTopic() string {
	return fmt.Sprintf("%s/%s", c.config.StatusTopic, c.deviceID)
}

// Attach подключается к брокеру как deviceID и публикует статус устройства.
// При обрыве соединения брокер публикует запись "offline".
func (c *Client) Attach(deviceID, label string) (Ack, error) {
	c.deviceID = deviceID
	c.label = label
	c.logger.Info("Attaching to MQTT broker", "broker", c.config.Broker, "device", deviceID)

	opts := mqttLib.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	// колбэки только ставят запросы в очередь, порядок держит цикл запросов
	opts.SetOrderMatters(false)

	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
		c.logger.Info("MQTT authentication: ENABLED")
	} else {
		c.logger.Info("MQTT authentication: DISABLED (anonymous mode)")
	}

	will, err := json.Marshal(attachRecord{ID: deviceID, Label: label, Status: "offline"})
	if err != nil {
		return Ack{}, fmt.Errorf("failed to marshal last will: %w", err)
	}
	opts.SetBinaryWill(c.statusTopic(), will, c.config.QoS, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.onConnectionLostHandler)
	opts.SetReconnectingHandler(c.onReconnectingHandler)

	c.mqttClient = c.newClient(opts)
	if token := c.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return Ack{}, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.startLoops()
	return c.announce()
}

// startLoops запускает циклы запросов и ответов
func (c *Client) startLoops() {
	c.loopsOnce.Do(func() {
		c.wg.Add(2)
		go c.handleRequestsLoop()
		go c.publishResponsesLoop()
	})
}

// announce публикует retained запись "online" и запускает heartbeat
func (c *Client) announce() (Ack, error) {
	ack := Ack{Heartbeat: c.config.Heartbeat, Timestamp: c.now().Unix()}
	if err := c.publishOnline(ack.Timestamp); err != nil {
		return Ack{}, err
	}
	c.attached.Store(true)

	if ack.Heartbeat > 0 {
		c.wg.Add(1)
		go c.heartbeatLoop(ack.Heartbeat)
	}

	c.logger.Info("Device attached", "device", c.deviceID, "timestamp", ack.Timestamp)
	return ack, nil
}

// publishOnline публикует retained запись "online"
func (c *Client) publishOnline(timestamp int64) error {
	record, err := json.Marshal(attachRecord{
		ID:        c.deviceID,
		Label:     c.label,
		Status:    "online",
		Heartbeat: int(c.config.Heartbeat.Seconds()),
		Timestamp: timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal attach record: %w", err)
	}
	return c.publish(c.statusTopic(), true, record)
}

// Stop останавливает циклы и отключается от брокера
func (c *Client) Stop() error {
	c.logger.Info("Stopping MQTT client...")

	c.halt()

	if c.mqttClient != nil && c.mqttClient.IsConnected() {
		record, _ := json.Marshal(attachRecord{ID: c.deviceID, Label: c.label, Status: "offline"})
		if err := c.publish(c.statusTopic(), true, record); err != nil {
			c.logger.Warn("Failed to publish offline status", "error", err)
		}
		c.mqttClient.Disconnect(1000)
		c.logger.Info("MQTT client disconnected")
	}

	return nil
}

// halt останавливает фоновые циклы и ждет их завершения
func (c *Client) halt() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
}

// onConnectHandler подписывается на запросы при каждом (пере)подключении.
// После переподключения у брокера лежит last will "offline", поэтому
// запись online публикуется заново.
func (c *Client) onConnectHandler(client mqttLib.Client) {
	c.logger.Info("Connected to MQTT broker")

	topic := c.requestTopic()
	token := client.Subscribe(topic, c.config.QoS, c.onCommandReceived)
	if !token.WaitTimeout(c.publishTimeout()) {
		c.logger.Error("Timed out subscribing to command topic", "topic", topic)
	} else if token.Error() != nil {
		c.logger.Error("Failed to subscribe to command topic", "topic", topic, "error", token.Error())
	} else {
		c.logger.Info("Subscribed to command topic", "topic", topic)
	}

	if !c.attached.Load() {
		return
	}
	if err := c.publishOnline(c.now().Unix()); err != nil {
		c.logger.Error("Failed to republish online status", "error", err)
		return
	}
	c.logger.Info("Online status republished")
}

func (c *Client) onConnectionLostHandler(client mqttLib.Client, err error) {
	c.logger.Warn("Connection lost", "error", err)
}

func (c *Client) onReconnectingHandler(client mqttLib.Client, opts *mqttLib.ClientOptions) {
	c.logger.Info("Attempting to reconnect to MQTT broker...")
}

// onCommandReceived ставит запрос в очередь для handleRequestsLoop.
// Вызывается в горутине колбэков paho: не блокирует и не публикует.
func (c *Client) onCommandReceived(client mqttLib.Client, msg mqttLib.Message) {
	c.logger.Debug("Received command", "topic", msg.Topic(), "bytes", len(msg.Payload()))

	payload := append([]byte(nil), msg.Payload()...)
	select {
	case c.requests <- payload:
	case <-c.stopChan:
		c.logger.Warn("Client stopping, dropping command", "topic", msg.Topic())
	case <-time.After(handoffTimeout):
		c.logger.Error("Timeout queueing command", "topic", msg.Topic())
	}
}

// handleRequestsLoop вызывает обработчик для каждого запроса из очереди
func (c *Client) handleRequestsLoop() {
	defer c.wg.Done()
	c.logger.Debug("Starting request loop")

	for {
		select {
		case <-c.stopChan:
			c.logger.Debug("Request loop stopped")
			return
		case payload := <-c.requests:
			c.handlerMu.RLock()
			handler := c.handler
			c.handlerMu.RUnlock()
			if handler == nil {
				c.logger.Warn("No handler bound, dropping command")
				continue
			}

			response := handler(payload)
			select {
			case c.responses <- response:
			case <-c.stopChan:
				return
			}
		}
	}
}

// publishResponsesLoop публикует ответы на команды
func (c *Client) publishResponsesLoop() {
	defer c.wg.Done()
	c.logger.Debug("Starting responses publish loop")

	for {
		select {
		case <-c.stopChan:
			c.logger.Debug("Responses publish loop stopped")
			return
		case response := <-c.responses:
			if err := c.publish(c.responseTopic(), false, response); err != nil {
				c.logger.Error("Failed to publish command response", "error", err)
			}
		}
	}
}

// heartbeatLoop публикует {"id","time"} в топик статуса
func (c *Client) heartbeatLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.sendHeartbeat()
		}
	}
}

func (c *Client) sendHeartbeat() {
	payload, err := json.Marshal(heartbeatMessage{ID: c.deviceID, Time: c.now().Unix()})
	if err != nil {
		c.logger.Error("Failed to marshal heartbeat", "error", err)
		return
	}
	if err := c.publish(c.statusTopic(), false, payload); err != nil {
		c.logger.Warn("Error in sending heartbeat", "error", err)
		return
	}
	c.logger.Debug("Heartbeat sent")
}

// Send публикует телеметрию
func (c *Client) Send(payload []byte) error {
	return c.publish(c.dataTopic(), false, payload)
}

func (c *Client) publish(topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.mqttClient.Publish(topic, c.config.QoS, retained, payload)
	if !token.WaitTimeout(c.publishTimeout()) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) publishTimeout() time.Duration {
	if c.config.ConnectTimeout > 0 {
		return c.config.ConnectTimeout
	}
	return 10 * time.Second
}

// IsConnected возвращает true, если клиент подключен к брокеру
func (c *Client) IsConnected() bool {
	return c.mqttClient != nil && c.mqttClient.IsConnected()
}
