package transfer

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/failure"
	"github.com/martinribelotta/uPyIDE/internal/transport"
)

func pipe(t *testing.T) (host, dev *transport.PipeEnd) {
	t.Helper()
	host, dev = transport.Pipe()
	host.SetReadTimeout(10 * time.Millisecond)
	dev.SetReadTimeout(transport.NoTimeout)
	t.Cleanup(func() { host.Close() })
	return host, dev
}

// sink plays the device side of Send: read each chunk, then ack it.
func sink(dev io.ReadWriter, size int, before []byte) (<-chan []byte, <-chan []int) {
	data := make(chan []byte, 1)
	sizes := make(chan []int, 1)
	go func() {
		var got []byte
		var chunks []int
		for len(got) < size {
			n := min(size-len(got), ChunkSize)
			buf := make([]byte, n)
			if _, err := io.ReadFull(dev, buf); err != nil {
				break
			}
			got = append(got, buf...)
			chunks = append(chunks, n)
			dev.Write(before)
			dev.Write([]byte{Ack})
		}
		data <- got
		sizes <- chunks
	}()
	return data, sizes
}

func TestSendChunksAndAcks(t *testing.T) {
	host, dev := pipe(t)
	payload := bytes.Repeat([]byte("x"), 1025)
	data, sizes := sink(dev, len(payload), nil)

	e := &Engine{Stall: time.Second}
	if err := e.Send(host, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := <-data; !bytes.Equal(got, payload) {
		t.Errorf("device got %d bytes, want %d", len(got), len(payload))
	}
	chunks := <-sizes
	want := []int{512, 512, 1}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v, want %v", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %d, want %d", i, chunks[i], want[i])
		}
	}
}

func TestSendForwardsStrayBytes(t *testing.T) {
	host, dev := pipe(t)
	payload := []byte("hello")
	data, _ := sink(dev, len(payload), []byte("?!"))

	var stray bytes.Buffer
	e := &Engine{Stall: time.Second, Stray: &stray}
	if err := e.Send(host, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-data
	if stray.String() != "?!" {
		t.Errorf("stray = %q, want %q", stray.String(), "?!")
	}
}

func TestSendWithoutAck(t *testing.T) {
	host, _ := pipe(t)
	e := &Engine{Stall: 50 * time.Millisecond}
	err := e.Send(host, bytes.NewReader([]byte("abc")), 3)
	if !failure.Is(err, failure.Timeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestSendShortSource(t *testing.T) {
	host, dev := pipe(t)
	sink(dev, 10, nil)
	e := &Engine{Stall: time.Second}
	err := e.Send(host, bytes.NewReader([]byte("abc")), 10)
	if !failure.Is(err, failure.Transfer) {
		t.Fatalf("err = %v, want transfer failure", err)
	}
}

func TestReceiveCarriesAckBytes(t *testing.T) {
	host, dev := pipe(t)
	// Every byte value, with the ack byte over represented, across two chunks.
	var payload []byte
	for i := 0; i < 700; i++ {
		if i%3 == 0 {
			payload = append(payload, Ack)
		} else {
			payload = append(payload, byte(i))
		}
	}

	acks := make(chan int, 1)
	go func() {
		n := 0
		rest := payload
		for len(rest) > 0 {
			c := min(len(rest), ChunkSize)
			dev.Write(rest[:c])
			rest = rest[c:]
			b := make([]byte, 1)
			if _, err := io.ReadFull(dev, b); err != nil || b[0] != Ack {
				break
			}
			n++
		}
		acks <- n
	}()

	var dst bytes.Buffer
	e := &Engine{Stall: time.Second}
	if err := e.Receive(host, &dst, int64(len(payload))); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(dst.Bytes(), payload) {
		t.Errorf("received payload differs")
	}
	if n := <-acks; n != 2 {
		t.Errorf("acks = %d, want 2", n)
	}
}

func TestReceiveStalls(t *testing.T) {
	host, dev := pipe(t)
	dev.Write([]byte("abc"))
	var dst bytes.Buffer
	e := &Engine{Stall: 50 * time.Millisecond}
	err := e.Receive(host, &dst, 10)
	if !failure.Is(err, failure.Timeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestZeroSize(t *testing.T) {
	host, _ := pipe(t)
	e := &Engine{}
	if err := e.Send(host, bytes.NewReader(nil), 0); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := e.Receive(host, io.Discard, 0); err != nil {
		t.Errorf("Receive: %v", err)
	}
}
