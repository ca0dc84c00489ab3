package wire

import (
	"bytes"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jkatz326/ngram/pkg/errors"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"publish", Publish{Text: "hello world"}},
		{"publish empty", Publish{Text: ""}},
		{"publish multiline", Publish{Text: "line one\nline two\n"}},
		{"publish unicode", Publish{Text: "Grüße, мир, 世界"}},
		{"search", Search{Word: "quick"}},
		{"search empty", Search{Word: ""}},
		{"retrieve zero", Retrieve{ID: 0}},
		{"retrieve large", Retrieve{ID: 1<<63 + 17}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeRequest(tt.req)
			decoded, err := DecodeRequest(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.req) {
				t.Errorf("round trip = %#v, want %#v", decoded, tt.req)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{"publish success", PublishSuccess{ID: 42}},
		{"search success", SearchSuccess{IDs: []uint64{0, 7, 1 << 40}}},
		{"search success empty", SearchSuccess{}},
		{"retrieve success", RetrieveSuccess{Text: "the document text"}},
		{"retrieve success empty", RetrieveSuccess{Text: ""}},
		{"failure", Failure{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeResponse(tt.resp)
			decoded, err := DecodeResponse(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.resp) {
				t.Errorf("round trip = %#v, want %#v", decoded, tt.resp)
			}
		})
	}
}

func TestDecodeRequestTruncated(t *testing.T) {
	// Cutting an encoded message at any point before its final byte must
	// yield an error, never a partial value or a panic.
	requests := []Request{
		Publish{Text: "hello world"},
		Search{Word: "quick"},
		Retrieve{ID: 123456},
	}
	for _, req := range requests {
		encoded := EncodeRequest(req)
		for cut := 0; cut < len(encoded); cut++ {
			decoded, err := DecodeRequest(bytes.NewReader(encoded[:cut]))
			if err == nil {
				t.Fatalf("DecodeRequest(%T cut at %d/%d) = %#v, want error",
					req, cut, len(encoded), decoded)
			}
		}
	}
}

func TestDecodeResponseTruncated(t *testing.T) {
	responses := []Response{
		PublishSuccess{ID: 9},
		SearchSuccess{IDs: []uint64{1, 2, 3}},
		RetrieveSuccess{Text: "body"},
	}
	for _, resp := range responses {
		encoded := EncodeResponse(resp)
		for cut := 0; cut < len(encoded); cut++ {
			decoded, err := DecodeResponse(bytes.NewReader(encoded[:cut]))
			if err == nil {
				t.Fatalf("DecodeResponse(%T cut at %d/%d) = %#v, want error",
					resp, cut, len(encoded), decoded)
			}
		}
	}
}

func TestDecodeEmptyStream(t *testing.T) {
	if _, err := DecodeRequest(bytes.NewReader(nil)); !stderrors.Is(err, errors.ErrInvalidMessage) {
		t.Errorf("DecodeRequest(empty) error = %v, want ErrInvalidMessage", err)
	}
	if _, err := DecodeResponse(bytes.NewReader(nil)); !stderrors.Is(err, errors.ErrInvalidMessage) {
		t.Errorf("DecodeResponse(empty) error = %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	for _, tag := range []byte{0, 5, 99, 255} {
		if _, err := DecodeRequest(bytes.NewReader([]byte{tag})); !stderrors.Is(err, errors.ErrUnknownTag) {
			t.Errorf("DecodeRequest(tag %d) error = %v, want ErrUnknownTag", tag, err)
		}
	}
	for _, tag := range []byte{0, 5, 99, 255} {
		if _, err := DecodeResponse(bytes.NewReader([]byte{tag})); !stderrors.Is(err, errors.ErrUnknownTag) {
			t.Errorf("DecodeResponse(tag %d) error = %v, want ErrUnknownTag", tag, err)
		}
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	// A publish frame whose body is not valid UTF-8.
	frame := []byte{tagPublish, 0, 0, 0, 0, 0, 0, 0, 2, 0xff, 0xfe}
	if _, err := DecodeRequest(bytes.NewReader(frame)); !stderrors.Is(err, errors.ErrInvalidMessage) {
		t.Errorf("DecodeRequest(invalid utf8) error = %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeOversizedLength(t *testing.T) {
	// Length prefix far beyond the allocation cap; must fail before
	// attempting the allocation.
	frame := append([]byte{tagSearch}, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	if _, err := DecodeRequest(bytes.NewReader(frame)); !stderrors.Is(err, errors.ErrMessageTooLarge) {
		t.Errorf("DecodeRequest(huge length) error = %v, want ErrMessageTooLarge", err)
	}

	frame = append([]byte{tagSearchSuccess}, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	if _, err := DecodeResponse(bytes.NewReader(frame)); !stderrors.Is(err, errors.ErrMessageTooLarge) {
		t.Errorf("DecodeResponse(huge count) error = %v, want ErrMessageTooLarge", err)
	}
}

func TestDecodeLengthLargerThanBody(t *testing.T) {
	// Claims 100 bytes but carries 5: a short read, not a partial value.
	var buf bytes.Buffer
	buf.WriteByte(tagPublish)
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 100})
	buf.WriteString("hello")
	if _, err := DecodeRequest(&buf); !stderrors.Is(err, errors.ErrInvalidMessage) {
		t.Errorf("DecodeRequest(short body) error = %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeFromStream(t *testing.T) {
	// Two back-to-back frames on one reader decode in order; framing is
	// self-delimiting with no separator bytes.
	var buf bytes.Buffer
	buf.Write(EncodeRequest(Publish{Text: "first"}))
	buf.Write(EncodeRequest(Search{Word: "second"}))

	got1, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatalf("first decode failed: %v", err)
	}
	if !reflect.DeepEqual(got1, Publish{Text: "first"}) {
		t.Errorf("first decode = %#v", got1)
	}
	got2, err := DecodeRequest(&buf)
	if err != nil {
		t.Fatalf("second decode failed: %v", err)
	}
	if !reflect.DeepEqual(got2, Search{Word: "second"}) {
		t.Errorf("second decode = %#v", got2)
	}
}

func TestEncodeRequestLayout(t *testing.T) {
	// Wire layout is a cross-host contract: tag byte, 8-byte big-endian
	// length, raw bytes.
	encoded := EncodeRequest(Search{Word: "hi"})
	want := []byte{2, 0, 0, 0, 0, 0, 0, 0, 2, 'h', 'i'}
	if !bytes.Equal(encoded, want) {
		t.Errorf("EncodeRequest(Search hi) = %v, want %v", encoded, want)
	}

	encoded = EncodeRequest(Retrieve{ID: 0x0102030405060708})
	want = []byte{3, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(encoded, want) {
		t.Errorf("EncodeRequest(Retrieve) = %v, want %v", encoded, want)
	}
}

func TestEncodeResponseLayout(t *testing.T) {
	encoded := EncodeResponse(SearchSuccess{IDs: []uint64{1, 2}})
	want := []byte{
		2,
		0, 0, 0, 0, 0, 0, 0, 2,
		0, 0, 0, 0, 0, 0, 0, 1,
		0, 0, 0, 0, 0, 0, 0, 2,
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("EncodeResponse(SearchSuccess) = %v, want %v", encoded, want)
	}

	if got := EncodeResponse(Failure{}); !bytes.Equal(got, []byte{4}) {
		t.Errorf("EncodeResponse(Failure) = %v, want [4]", got)
	}
}

func TestLargePayloadRoundTrip(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 10000)
	encoded := EncodeRequest(Publish{Text: text})
	decoded, err := DecodeRequest(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if decoded.(Publish).Text != text {
		t.Error("large payload corrupted in round trip")
	}
}
