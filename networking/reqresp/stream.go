package reqresp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/golang/snappy"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/sirupsen/logrus"

	"github.com/duskengine/rusk/codec"
	"github.com/duskengine/rusk/types"
)

const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
	MaxMsgSize   = 10 * 1024 * 1024
)

const (
	RespCodeSuccess     byte = 0x00
	RespCodeInvalidReq  byte = 0x01
	RespCodeServerError byte = 0x02
)

// StreamHandler registers and serves the GetBlocks/GetMempool streaming
// protocols over libp2p.
type StreamHandler struct {
	host    host.Host
	handler *Handler
	logger  *logrus.Entry
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(h host.Host, handler *Handler, logger *logrus.Entry) *StreamHandler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StreamHandler{host: h, handler: handler, logger: logger}
}

// RegisterProtocols installs both stream handlers on the host.
func (s *StreamHandler) RegisterProtocols() {
	s.host.SetStreamHandler(protocol.ID(GetBlocksProtocolV1), s.handleGetBlocksStream)
	s.host.SetStreamHandler(protocol.ID(GetMempoolProtocolV1), s.handleGetMempoolStream)
}

func (s *StreamHandler) handleGetBlocksStream(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))

	data, err := readMessage(stream)
	if err != nil {
		s.logger.WithError(err).Debug("get blocks: failed to read request")
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}
	req, err := codec.DecodeGetBlocks(data)
	if err != nil {
		s.logger.WithError(err).Debug("get blocks: failed to decode request")
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}

	resp, err := s.handler.HandleGetBlocks(req)
	if err != nil {
		s.logger.WithError(err).Debug("get blocks: handler failed")
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeSuccessResponse(stream, codec.EncodeBlocks(resp)); err != nil {
		s.logger.WithError(err).Debug("get blocks: failed to write response")
	}
}

func (s *StreamHandler) handleGetMempoolStream(stream network.Stream) {
	defer stream.Close()
	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))

	data, err := readMessage(stream)
	if err != nil {
		s.logger.WithError(err).Debug("get mempool: failed to read request")
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}
	req, err := codec.DecodeGetMempool(data)
	if err != nil {
		s.logger.WithError(err).Debug("get mempool: failed to decode request")
		writeErrorResponse(stream, RespCodeInvalidReq)
		return
	}

	resp := s.handler.HandleGetMempool(req)

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeSuccessResponse(stream, codec.EncodeMempool(resp)); err != nil {
		s.logger.WithError(err).Debug("get mempool: failed to write response")
	}
}

// RequestBlocks asks peerID for a contiguous block range (spec.md §4.9
// gap recovery).
func (s *StreamHandler) RequestBlocks(ctx context.Context, peerID peer.ID, req types.GetBlocksMessage) (types.BlocksMessage, error) {
	stream, err := s.host.NewStream(ctx, peerID, protocol.ID(GetBlocksProtocolV1))
	if err != nil {
		return types.BlocksMessage{}, fmt.Errorf("reqresp: open get blocks stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeMessage(stream, codec.EncodeGetBlocks(req)); err != nil {
		return types.BlocksMessage{}, fmt.Errorf("reqresp: write get blocks request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return types.BlocksMessage{}, fmt.Errorf("reqresp: close write: %w", err)
	}

	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))
	code, data, err := readResponse(stream)
	if err != nil {
		return types.BlocksMessage{}, fmt.Errorf("reqresp: read get blocks response: %w", err)
	}
	if code != RespCodeSuccess {
		return types.BlocksMessage{}, fmt.Errorf("reqresp: peer returned error code %d", code)
	}
	return codec.DecodeBlocks(data)
}

// RequestMempool asks peerID for up to Quota pending transactions.
func (s *StreamHandler) RequestMempool(ctx context.Context, peerID peer.ID, req types.GetMempoolMessage) (types.MempoolMessage, error) {
	stream, err := s.host.NewStream(ctx, peerID, protocol.ID(GetMempoolProtocolV1))
	if err != nil {
		return types.MempoolMessage{}, fmt.Errorf("reqresp: open get mempool stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := writeMessage(stream, codec.EncodeGetMempool(req)); err != nil {
		return types.MempoolMessage{}, fmt.Errorf("reqresp: write get mempool request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return types.MempoolMessage{}, fmt.Errorf("reqresp: close write: %w", err)
	}

	_ = stream.SetReadDeadline(time.Now().Add(ReadTimeout))
	code, data, err := readResponse(stream)
	if err != nil {
		return types.MempoolMessage{}, fmt.Errorf("reqresp: read get mempool response: %w", err)
	}
	if code != RespCodeSuccess {
		return types.MempoolMessage{}, fmt.Errorf("reqresp: peer returned error code %d", code)
	}
	return codec.DecodeMempool(data)
}

// readMessage reads a varint-length-prefixed, snappy-compressed message
// from the stream.
func readMessage(r io.Reader) ([]byte, error) {
	buf := make([]byte, MaxMsgSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	buf = buf[:n]

	if len(buf) < 2 {
		return nil, fmt.Errorf("reqresp: message too short")
	}

	uncompressedSize, varintLen := binary.Uvarint(buf)
	if varintLen <= 0 {
		return nil, fmt.Errorf("reqresp: invalid varint length prefix")
	}
	if uncompressedSize > MaxMsgSize {
		return nil, fmt.Errorf("reqresp: message too large: %d", uncompressedSize)
	}

	decoded, err := snappy.Decode(nil, buf[varintLen:])
	if err != nil {
		return nil, fmt.Errorf("reqresp: snappy decode: %w", err)
	}
	if uint64(len(decoded)) != uncompressedSize {
		return nil, fmt.Errorf("reqresp: size mismatch: expected %d, got %d", uncompressedSize, len(decoded))
	}
	return decoded, nil
}

// writeMessage writes a varint-length-prefixed, snappy-compressed message.
func writeMessage(w io.Writer, data []byte) error {
	compressed := snappy.Encode(nil, data)

	varintBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(varintBuf, uint64(len(data)))
	if _, err := w.Write(varintBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// readResponse reads a one-byte response code followed by a framed message.
func readResponse(r io.Reader) (byte, []byte, error) {
	codeBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, codeBuf); err != nil {
		return 0, nil, err
	}
	data, err := readMessage(r)
	return codeBuf[0], data, err
}

func writeSuccessResponse(w io.Writer, data []byte) error {
	if _, err := w.Write([]byte{RespCodeSuccess}); err != nil {
		return err
	}
	return writeMessage(w, data)
}

func writeErrorResponse(w io.Writer, code byte) error {
	_, err := w.Write([]byte{code})
	return err
}
