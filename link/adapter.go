// Package link держит последовательное соединение с автопилотом для
// низкоуровневых сообщений.
package link

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var ErrNotConnected = errors.New("autopilot link not connected")

// Config конфигурация последовательного порта
type Config struct {
	DevicePath        string        `mapstructure:"device_path"`        // например "/dev/ttyACM0"; пусто - порт отключен
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"` // пауза между попытками переподключения
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		DevicePath:        "",
		ReconnectInterval: 5 * time.Second,
	}
}

// Adapter владеет последовательным портом. Запись синхронная; при ошибке
// записи соединение закрывается, и цикл переподключения открывает его снова.
type Adapter struct {
	config    Config
	conn      io.ReadWriteCloser
	connMutex sync.RWMutex
	writeMu   sync.Mutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger
	open      func(path string) (io.ReadWriteCloser, error)

	bytesRead uint64
}

// NewAdapter создает адаптер
func NewAdapter(config Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		config:   config,
		stopChan: make(chan struct{}),
		logger:   logger,
		open:     openDevice,
	}
}

// Start запускает циклы чтения и переподключения
func (a *Adapter) Start() error {
	a.logger.Info("Starting autopilot link", "device", a.config.DevicePath)

	a.wg.Add(1)
	go a.readLoop()

	a.wg.Add(1)
	go a.reconnectLoop()

	return nil
}

// Stop останавливает циклы и закрывает порт
func (a *Adapter) Stop() error {
	a.logger.Info("Stopping autopilot link...")
	close(a.stopChan)
	a.closeConnection()
	a.wg.Wait()

	a.logger.Info("Autopilot link stopped")
	return nil
}

// Write отправляет один кадр автопилоту
func (a *Adapter) Write(frame []byte) error {
	conn := a.getConnection()
	if conn == nil {
		return ErrNotConnected
	}

	a.writeMu.Lock()
	_, err := conn.Write(frame)
	a.writeMu.Unlock()
	if err != nil {
		a.logger.Warn("Write error", "error", err)
		a.closeConnection()
		return fmt.Errorf("write to %s: %w", a.config.DevicePath, err)
	}

	a.logger.Debug("Raw frame sent", "frame", FormatFrame(frame))
	return nil
}

// BytesRead возвращает число байт, полученных от автопилота с запуска
func (a *Adapter) BytesRead() uint64 {
	a.connMutex.RLock()
	defer a.connMutex.RUnlock()
	return a.bytesRead
}

func (a *Adapter) isConnected() bool {
	return a.getConnection() != nil
}

func (a *Adapter) setConnection(conn io.ReadWriteCloser) {
	a.connMutex.Lock()
	a.conn = conn
	a.connMutex.Unlock()
	a.logger.Info("Autopilot link established")
}

func (a *Adapter) getConnection() io.ReadWriteCloser {
	a.connMutex.RLock()
	defer a.connMutex.RUnlock()
	return a.conn
}

func (a *Adapter) closeConnection() {
	a.connMutex.Lock()
	closed := a.conn != nil
	if closed {
		a.conn.Close()
		a.conn = nil
	}
	a.connMutex.Unlock()
	if closed {
		a.logger.Info("Autopilot link closed")
	}
}

func openDevice(path string) (io.ReadWriteCloser, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("device %s does not exist", path)
	}
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	return file, nil
}

func (a *Adapter) connect() error {
	conn, err := a.open(a.config.DevicePath)
	if err != nil {
		return err
	}
	a.setConnection(conn)
	return nil
}

// readLoop вычитывает входящие байты. Кадры здесь не декодируются.
func (a *Adapter) readLoop() {
	defer a.wg.Done()
	buf := make([]byte, 512)

	for {
		select {
		case <-a.stopChan:
			return
		default:
		}

		conn := a.getConnection()
		if conn == nil {
			select {
			case <-a.stopChan:
				return
			case <-time.After(a.config.ReconnectInterval):
			}
			continue
		}

		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-a.stopChan:
				return
			default:
			}
			a.logger.Warn("Read error", "error", err)
			a.closeConnection()
			continue
		}
		a.connMutex.Lock()
		a.bytesRead += uint64(n)
		a.connMutex.Unlock()
	}
}

func (a *Adapter) reconnectLoop() {
	defer a.wg.Done()

	if err := a.connect(); err != nil {
		a.logger.Warn("Initial connection failed", "error", err)
	}

	ticker := time.NewTicker(a.config.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if !a.isConnected() {
				a.logger.Info("Attempting to reconnect...")
				if err := a.connect(); err != nil {
					a.logger.Warn("Reconnection failed", "error", err)
				}
			}
		}
	}
}
