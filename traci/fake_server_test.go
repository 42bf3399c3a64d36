package traci

import (
	"io"
	"net"
	"sync"
	"testing"
)

// request is one command received by the fake simulator.
type request struct {
	id      byte
	content []byte
}

// handler answers one request with the body of the reply message.
type handler func(req request) []byte

// fakeSimulator speaks the server side of TraCI over an in-memory pipe.
type fakeSimulator struct {
	mu       sync.Mutex
	requests []request
	done     chan struct{}
}

// newFakeSimulator returns a Client wired to a fake simulator using h.
func newFakeSimulator(t *testing.T, h handler) (*Client, *fakeSimulator) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	fs := &fakeSimulator{done: make(chan struct{})}
	go fs.serve(serverSide, h)
	t.Cleanup(func() {
		_ = clientSide.Close()
		<-fs.done
	})
	return newClient(clientSide), fs
}

func (fs *fakeSimulator) serve(nc net.Conn, h handler) {
	defer close(fs.done)
	defer func() { _ = nc.Close() }()
	for {
		var header [4]byte
		if _, err := io.ReadFull(nc, header[:]); err != nil {
			return
		}
		total, _ := newReader(header[:]).int32()
		body := make([]byte, total-4)
		if _, err := io.ReadFull(nc, body); err != nil {
			return
		}
		r := newReader(body)
		start := r.pos
		n, err := r.length()
		if err != nil {
			return
		}
		id, err := r.ubyte()
		if err != nil {
			return
		}
		req := request{id: id, content: body[r.pos : start+n]}
		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		fs.mu.Unlock()

		reply := h(req)
		var msg storage
		msg.int32(int32(4 + len(reply)))
		msg.buf.Write(reply)
		if _, err := nc.Write(msg.bytes()); err != nil {
			return
		}
		if id == cmdClose {
			return
		}
	}
}

func (fs *fakeSimulator) received() []request {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]request(nil), fs.requests...)
}

func statusCmd(id, result byte, desc string) []byte {
	var s storage
	s.ubyte(result)
	s.str(desc)
	return encodeCommand(id, s.bytes())
}

func okStatus(id byte) []byte {
	return statusCmd(id, statusOK, "")
}

// getReply builds the OK status plus the response command of a get request.
func getReply(req request, value func(*storage)) []byte {
	r := newReader(req.content)
	varID, _ := r.ubyte()
	objID, _ := r.str()
	var s storage
	s.ubyte(varID)
	s.str(objID)
	value(&s)
	return append(okStatus(req.id), encodeCommand(req.id+responseOffset, s.bytes())...)
}

func versionReply(api int32, version string) []byte {
	var s storage
	s.int32(api)
	s.str(version)
	return append(okStatus(cmdGetVersion), encodeCommand(cmdGetVersion, s.bytes())...)
}
