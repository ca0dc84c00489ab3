// Package wire implements the archive's binary protocol. Messages are
// self-framing over a byte stream: a one-byte tag identifies the variant,
// integers are big-endian, ids and lengths are 8 bytes wide, and strings
// are a length prefix followed by UTF-8 bytes.
//
// Encoding is total. Decoding is strict: a short read, an unknown tag, an
// oversized length prefix, or invalid UTF-8 yields an error and no value,
// never a partial one. decode(encode(v)) == v for every valid value.
package wire

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/jkatz326/ngram/pkg/errors"
)

// Request tags.
const (
	tagPublish  byte = 1
	tagSearch   byte = 2
	tagRetrieve byte = 3
)

// Response tags.
const (
	tagPublishSuccess  byte = 1
	tagSearchSuccess   byte = 2
	tagRetrieveSuccess byte = 3
	tagFailure         byte = 4
)

// maxStringLen caps the allocation a hostile length prefix can force.
const maxStringLen = 64 << 20

// maxResultCount caps the id-list allocation in a SearchSuccess.
const maxResultCount = 1 << 22

// Request is a client-to-server message.
type Request interface {
	isRequest()
}

// Publish asks the server to add a document to the archive.
type Publish struct {
	Text string
}

// Search asks for the ids of all documents containing Word.
type Search struct {
	Word string
}

// Retrieve asks for the document with the given id.
type Retrieve struct {
	ID uint64
}

func (Publish) isRequest()  {}
func (Search) isRequest()   {}
func (Retrieve) isRequest() {}

// Response is a server-to-client message.
type Response interface {
	isResponse()
}

// PublishSuccess carries the id assigned to a published document.
type PublishSuccess struct {
	ID uint64
}

// SearchSuccess carries the ids of the documents matching a search.
type SearchSuccess struct {
	IDs []uint64
}

// RetrieveSuccess carries a retrieved document's text.
type RetrieveSuccess struct {
	Text string
}

// Failure reports that the request could not be satisfied. A retrieve of an
// unknown id and an undecodable request both produce it.
type Failure struct{}

func (PublishSuccess) isResponse()  {}
func (SearchSuccess) isResponse()   {}
func (RetrieveSuccess) isResponse() {}
func (Failure) isResponse()         {}

// EncodeRequest serializes a request. It never fails.
func EncodeRequest(req Request) []byte {
	switch r := req.(type) {
	case Publish:
		return appendString([]byte{tagPublish}, r.Text)
	case Search:
		return appendString([]byte{tagSearch}, r.Word)
	case Retrieve:
		return binary.BigEndian.AppendUint64([]byte{tagRetrieve}, r.ID)
	default:
		// The Request interface is sealed; this is unreachable.
		panic("wire: unknown request type")
	}
}

// EncodeResponse serializes a response. It never fails.
func EncodeResponse(resp Response) []byte {
	switch r := resp.(type) {
	case PublishSuccess:
		return binary.BigEndian.AppendUint64([]byte{tagPublishSuccess}, r.ID)
	case SearchSuccess:
		buf := binary.BigEndian.AppendUint64([]byte{tagSearchSuccess}, uint64(len(r.IDs)))
		for _, id := range r.IDs {
			buf = binary.BigEndian.AppendUint64(buf, id)
		}
		return buf
	case RetrieveSuccess:
		return appendString([]byte{tagRetrieveSuccess}, r.Text)
	case Failure:
		return []byte{tagFailure}
	default:
		panic("wire: unknown response type")
	}
}

// DecodeRequest reads exactly one request from r. On any framing error the
// stream position is unspecified and the connection should be abandoned.
func DecodeRequest(r io.Reader) (Request, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagPublish:
		text, err := readString(r)
		if err != nil {
			return nil, err
		}
		return Publish{Text: text}, nil
	case tagSearch:
		word, err := readString(r)
		if err != nil {
			return nil, err
		}
		return Search{Word: word}, nil
	case tagRetrieve:
		id, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return Retrieve{ID: id}, nil
	default:
		return nil, errors.Newf(errors.ErrUnknownTag, "request tag %d", tag)
	}
}

// DecodeResponse reads exactly one response from r.
func DecodeResponse(r io.Reader) (Response, error) {
	tag, err := readTag(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagPublishSuccess:
		id, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return PublishSuccess{ID: id}, nil
	case tagSearchSuccess:
		count, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		if count > maxResultCount {
			return nil, errors.Newf(errors.ErrMessageTooLarge, "result count %d", count)
		}
		var ids []uint64
		for i := uint64(0); i < count; i++ {
			id, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return SearchSuccess{IDs: ids}, nil
	case tagRetrieveSuccess:
		text, err := readString(r)
		if err != nil {
			return nil, err
		}
		return RetrieveSuccess{Text: text}, nil
	case tagFailure:
		return Failure{}, nil
	default:
		return nil, errors.Newf(errors.ErrUnknownTag, "response tag %d", tag)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(s)))
	return append(buf, s...)
}

func readTag(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Newf(errors.ErrInvalidMessage, "reading tag: %v", err)
	}
	return b[0], nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errors.Newf(errors.ErrInvalidMessage, "reading integer: %v", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readString(r io.Reader) (string, error) {
	length, err := readUint64(r)
	if err != nil {
		return "", err
	}
	if length > maxStringLen {
		return "", errors.Newf(errors.ErrMessageTooLarge, "string length %d", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Newf(errors.ErrInvalidMessage, "reading string body: %v", err)
	}
	if !utf8.Valid(buf) {
		return "", errors.New(errors.ErrInvalidMessage, "string is not valid UTF-8")
	}
	return string(buf), nil
}
