package tuya

import (
	"bytes"
	"context"
	"crypto/aes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultPort is the LAN control port of Tuya devices
const DefaultPort = 6668

var (
	// ErrInvalidResponse is returned for payloads that are not the expected JSON
	ErrInvalidResponse = errors.New("invalid device response")

	// ErrRejected is returned when the device answers with a non-zero return code
	ErrRejected = errors.New("device rejected command")

	// ErrClosed is returned for calls after Close
	ErrClosed = errors.New("device connection closed")
)

// Status is the decoded DP_QUERY answer
type Status struct {
	DevID string                 `json:"devId"`
	DPS   map[string]interface{} `json:"dps"`
}

// Mode returns the work mode on dp 21
func (s *Status) Mode() (string, bool) {
	if s == nil || s.DPS == nil {
		return "", false
	}
	mode, ok := s.DPS[DPMode].(string)
	return mode, ok
}

// Switch returns the on/off state on dp 20
func (s *Status) Switch() (bool, bool) {
	if s == nil || s.DPS == nil {
		return false, false
	}
	on, ok := s.DPS[DPSwitch].(bool)
	return on, ok
}

// Device is a protocol 3.3 LAN client for a colour bulb or LED strip.
// Calls are serialized; a failed call drops the connection and the next call redials.
type Device struct {
	id      string
	addr    string
	cipher  *ecbCipher
	timeout time.Duration
	logger  *slog.Logger
	dialer  net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	seq    uint32
	closed bool
}

type Option func(d *Device)

// WithTimeout bounds dialing and each request/response exchange
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) {
		d.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// New creates a device client without connecting
func New(id, address, localKey string, opts ...Option) (*Device, error) {
	if id == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if address == "" {
		return nil, fmt.Errorf("device address is required")
	}

	c, err := newECBCipher([]byte(localKey))
	if err != nil {
		return nil, err
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}

	d := &Device{
		id:      id,
		addr:    address,
		cipher:  c,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}

	return d, nil
}

// Dial creates a device client and opens its connection
func Dial(ctx context.Context, id, address, localKey string, opts ...Option) (*Device, error) {
	d, err := New(id, address, localKey, opts...)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.connect(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Address returns host:port of the device
func (d *Device) Address() string {
	return d.addr
}

// Status queries all data points
func (d *Device) Status(ctx context.Context) (*Status, error) {
	payload, err := d.payload(CommandDPQuery, nil)
	if err != nil {
		return nil, err
	}

	// STATUS pushes carry only the changed dps and are not an answer
	data, err := d.request(ctx, CommandDPQuery, payload, func(cmd uint32) bool {
		return cmd == CommandDPQuery
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResponse, truncate(data))
	}
	return &status, nil
}

// SetColour switches the device to colour mode with the given RGB colour (channels 0-255)
func (d *Device) SetColour(ctx context.Context, r, g, b float64) error {
	hex, err := colourHex(r, g, b)
	if err != nil {
		return err
	}
	return d.control(ctx, map[string]interface{}{
		DPMode:   ModeColour,
		DPColour: hex,
	})
}

// TurnOn switches the device on
func (d *Device) TurnOn(ctx context.Context) error {
	return d.control(ctx, map[string]interface{}{DPSwitch: true})
}

// TurnOff switches the device off
func (d *Device) TurnOff(ctx context.Context) error {
	return d.control(ctx, map[string]interface{}{DPSwitch: false})
}

// Close closes the connection; the device cannot be used afterwards
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *Device) control(ctx context.Context, dps map[string]interface{}) error {
	payload, err := d.payload(CommandControl, dps)
	if err != nil {
		return err
	}
	_, err = d.request(ctx, CommandControl, payload, func(cmd uint32) bool {
		return cmd == CommandControl
	})
	return err
}

// payload builds the encrypted JSON body for a command
func (d *Device) payload(command uint32, dps map[string]interface{}) ([]byte, error) {
	body := map[string]interface{}{
		"devId": d.id,
		"uid":   d.id,
		"t":     strconv.FormatInt(time.Now().Unix(), 10),
	}
	if command == CommandDPQuery {
		body["gwId"] = d.id
	}
	if dps != nil {
		body["dps"] = dps
	}

	js, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	enc := d.cipher.encrypt(js)
	if command == CommandControl {
		return append(append([]byte{}, versionHeader...), enc...), nil
	}
	return enc, nil
}

// request sends one frame and waits for the first answer accepted by match.
// It returns the decrypted answer payload, which may be empty.
func (d *Device) request(ctx context.Context, command uint32, payload []byte, match func(uint32) bool) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	if d.conn == nil {
		if err := d.connect(ctx); err != nil {
			return nil, err
		}
	}

	data, err := d.exchange(ctx, command, payload, match)
	if err != nil && !errors.Is(err, ErrRejected) {
		d.logger.Debug("Dropping device connection", "address", d.addr, "error", err)
		d.conn.Close()
		d.conn = nil
	}
	return data, err
}

func (d *Device) exchange(ctx context.Context, command uint32, payload []byte, match func(uint32) bool) ([]byte, error) {
	// The AfterFunc callback may outlive this call, so it must not touch d.conn
	conn := d.conn

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock pending I/O when the context is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	d.seq++
	if _, err := conn.Write(encodeFrame(d.seq, command, payload)); err != nil {
		return nil, fmt.Errorf("failed to write to %s: %w", d.addr, err)
	}

	// Devices may interleave unsolicited status pushes or heartbeats
	for i := 0; i < 8; i++ {
		f, err := readFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read from %s: %w", d.addr, err)
		}

		if !match(f.Command) {
			d.logger.Debug("Skipping unrelated device frame", "command", f.Command)
			continue
		}
		if f.HasReturn && f.ReturnCode != 0 {
			return nil, fmt.Errorf("%w: command %d return code %d", ErrRejected, command, f.ReturnCode)
		}

		return d.decode(f.Payload)
	}

	return nil, fmt.Errorf("%w: no answer to command %d", ErrInvalidResponse, command)
}

func (d *Device) decode(payload []byte) ([]byte, error) {
	p := stripVersionHeader(payload)
	if len(p) == 0 {
		return nil, nil
	}
	// Some firmware answers errors in plain text, e.g. "json obj data unvalid"
	if p[0] == '{' {
		return p, nil
	}
	if bytes.Contains(p, []byte("unvalid")) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResponse, truncate(p))
	}
	// Ciphertext is whole AES blocks; anything else is not an encrypted answer
	if len(p)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResponse, truncate(p))
	}
	return d.cipher.decrypt(p)
}

func (d *Device) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, err := d.dialer.DialContext(dialCtx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.addr, err)
	}

	d.conn = conn
	d.logger.Debug("Connected to device", "address", d.addr)
	return nil
}

func truncate(b []byte) []byte {
	if len(b) > 64 {
		return b[:64]
	}
	return b
}
