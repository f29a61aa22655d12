package extract

import (
	"io"

	rosbag "github.com/lherman-cs/rosbag-extract"
)

// MessageSource yields message records in bag order and returns io.EOF at the end.
// rosbag.MessageIterator is a MessageSource.
type MessageSource interface {
	Next() (*rosbag.RecordMessageData, error)
}

// Frame is one message per subscribed topic. Index starts at 1.
type Frame struct {
	Index    int
	Messages map[string]*rosbag.RecordMessageData
}

// Close releases every message of the frame.
func (f *Frame) Close() {
	for _, msg := range f.Messages {
		msg.Close()
	}
}

// frameBuffer keeps the latest message of every subscribed topic.
type frameBuffer struct {
	slots  map[string]*rosbag.RecordMessageData
	filled int
}

func newFrameBuffer(topics []string) *frameBuffer {
	slots := make(map[string]*rosbag.RecordMessageData, len(topics))
	for _, topic := range topics {
		slots[topic] = nil
	}
	return &frameBuffer{slots: slots}
}

// store puts msg in the slot of its topic and reports whether every slot is now filled.
// It returns false without taking msg when the topic isn't subscribed.
func (buf *frameBuffer) store(msg *rosbag.RecordMessageData) (stored, full bool) {
	topic := msg.Topic()
	prev, ok := buf.slots[topic]
	if !ok {
		return false, false
	}

	if prev != nil {
		prev.Close()
	} else {
		buf.filled++
	}
	buf.slots[topic] = msg
	return true, buf.filled == len(buf.slots)
}

// take hands over the filled slots and empties the buffer.
func (buf *frameBuffer) take() map[string]*rosbag.RecordMessageData {
	msgs := make(map[string]*rosbag.RecordMessageData, len(buf.slots))
	for topic, msg := range buf.slots {
		if msg != nil {
			msgs[topic] = msg
		}
		buf.slots[topic] = nil
	}
	buf.filled = 0
	return msgs
}

func (buf *frameBuffer) release() {
	for _, msg := range buf.take() {
		msg.Close()
	}
}

// Synchronizer groups messages into frames. A frame is emitted as soon as every
// subscribed topic has received a message since the previous frame. A topic that
// publishes more than once in between only contributes its latest message.
type Synchronizer struct {
	src   MessageSource
	buf   *frameBuffer
	count int
	err   error
}

func NewSynchronizer(src MessageSource, topics []string) *Synchronizer {
	return &Synchronizer{
		src: src,
		buf: newFrameBuffer(topics),
	}
}

// Next returns the next frame, which the caller must Close. It returns io.EOF when the
// source is exhausted and a *StreamingError when the source fails. Messages still
// buffered at that point are dropped.
func (s *Synchronizer) Next() (*Frame, error) {
	if s.err != nil {
		return nil, s.err
	}

	for {
		msg, err := s.src.Next()
		if err != nil {
			s.buf.release()
			if err == io.EOF {
				s.err = io.EOF
			} else {
				s.err = &StreamingError{Err: err}
			}
			return nil, s.err
		}

		stored, full := s.buf.store(msg)
		if !stored {
			msg.Close()
			continue
		}

		if full {
			s.count++
			return &Frame{Index: s.count, Messages: s.buf.take()}, nil
		}
	}
}

// Frames is the number of frames emitted so far.
func (s *Synchronizer) Frames() int {
	return s.count
}

// Close releases the buffered messages.
func (s *Synchronizer) Close() {
	s.buf.release()
}
