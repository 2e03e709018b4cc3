package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"eiademand/internal/core"
	applog "eiademand/internal/log"
)

func TestRecordsRoundTripKeepsTable(t *testing.T) {
	records := []core.Record{
		{"period": "2026-02-09T05", "value": json.Number("1234.5"), "respondent": "PJM", "timezone": "Eastern"},
		{"period": "2026-02-09T06", "value": nil, "respondent": "NYIS"},
	}

	data, err := encodeRecords(records)
	if err != nil {
		t.Fatalf("encodeRecords() error = %v", err)
	}
	got, err := decodeRecords(data)
	if err != nil {
		t.Fatalf("decodeRecords() error = %v", err)
	}

	want := core.TableFromRecords(records)
	if table := core.TableFromRecords(got); !reflect.DeepEqual(table, want) {
		t.Errorf("table from cached records = %+v, want %+v", table, want)
	}
}

func TestEncodeRecords_NilIsEmptyList(t *testing.T) {
	data, err := encodeRecords(nil)
	if err != nil {
		t.Fatalf("encodeRecords() error = %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("encodeRecords(nil) = %s, want []", data)
	}
}

func TestDecodeRecords_Invalid(t *testing.T) {
	if _, err := decodeRecords([]byte("{not json")); err == nil {
		t.Fatal("expected an error for malformed data")
	}
}

func TestNewRecordStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 on loopback refuses connections.
	if _, err := NewRecordStore(ctx, "127.0.0.1:1", 0, time.Minute, nil); err == nil {
		t.Fatal("expected an error for an unreachable server")
	}
}

// respServer answers just enough of the Redis protocol for GetRecords: GET
// returns a fixed payload and DEL fails.
func respServer(t *testing.T, payload string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveRESP(conn, payload)
		}
	}()
	return ln.Addr().String()
}

func serveRESP(conn net.Conn, payload string) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		var reply string
		switch strings.ToUpper(args[0]) {
		case "HELLO":
			reply = "-ERR unknown command 'HELLO'\r\n"
		case "GET":
			reply = fmt.Sprintf("$%d\r\n%s\r\n", len(payload), payload)
		case "DEL":
			reply = "-READONLY You can't write against a read only replica.\r\n"
		default:
			reply = "+OK\r\n"
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "*")))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array header %q", line)
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "$")))
		if err != nil {
			return nil, fmt.Errorf("bad bulk header %q", header)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGetRecords_UnreadableEntryLogsFailedDrop(t *testing.T) {
	addr := respServer(t, "{not json")
	var logs syncBuffer
	logger := applog.New(applog.Config{Output: &logs})

	client := redis.NewClient(&redis.Options{Addr: addr})
	s := newRecordStore(client, time.Minute, logger)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	records, ok, err := s.GetRecords(ctx, "k")
	if err == nil || ok || records != nil {
		t.Fatalf("GetRecords() = %v, %v, %v; want a decode error", records, ok, err)
	}
	if !strings.Contains(logs.String(), "Failed to drop unreadable shared cache entry") {
		t.Errorf("expected the failed delete to be logged, got %q", logs.String())
	}
}
