package link

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxFrameSize максимальный размер сообщения; кадр MAVLink v2 не больше 280 байт
const MaxFrameSize = 280

// ParseFrame преобразует hex строку вида "FE 09 00 01" в байты
// (пробелы необязательны, префикс "0x" допускается).
func ParseFrame(hex string) ([]byte, error) {
	fields := strings.Fields(strings.TrimSpace(hex))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	// "FE0900" принимается так же, как "FE 09 00"
	if len(fields) == 1 && len(strings.TrimPrefix(strings.ToLower(fields[0]), "0x")) > 2 {
		joined := strings.TrimPrefix(strings.ToLower(fields[0]), "0x")
		if len(joined)%2 != 0 {
			return nil, fmt.Errorf("odd number of hex digits: %s", fields[0])
		}
		fields = fields[:0]
		for i := 0; i < len(joined); i += 2 {
			fields = append(fields, joined[i:i+2])
		}
	}

	if len(fields) > MaxFrameSize {
		return nil, fmt.Errorf("frame too long: %d bytes", len(fields))
	}

	frame := make([]byte, len(fields))
	for i, part := range fields {
		part = strings.TrimPrefix(strings.ToLower(part), "0x")
		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data %s: %v", part, err)
		}
		frame[i] = byte(val)
	}
	return frame, nil
}

// FormatFrame форматирует байты в виде, который читает ParseFrame
func FormatFrame(frame []byte) string {
	parts := make([]string, len(frame))
	for i, b := range frame {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
