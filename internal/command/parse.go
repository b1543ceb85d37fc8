package command

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"dashagent/internal/logging"
)

// Raw is one JSON object read from input, before decoding.
type Raw struct {
	Line   int // 1-based line the object starts on
	Object json.RawMessage
}

// maxLineSize bounds a single line in line mode. Commands carrying file
// content can be long.
const maxLineSize = 16 << 20

// Parse reads the three accepted input shapes: one object, a stream of
// objects (one per line or pretty-printed), or one array of objects.
//
// Malformed pieces do not stop parsing. Parse returns every object it could
// read together with a *ParseError listing the rest; callers decide whether a
// partial batch may run.
func Parse(data []byte) ([]Raw, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Msg: "no commands"}
	}

	if trimmed[0] == '[' {
		raws, err := parseArray(data)
		logging.ParserDebug("parsed array input: %d command(s)", len(raws))
		return raws, err
	}

	raws, lineErrs, streamErr := parseStream(data)
	if streamErr == nil {
		logging.ParserDebug("parsed stream input: %d command(s)", len(raws))
		return raws, finish(raws, lineErrs)
	}

	logging.ParserDebug("stream decode failed (%v), falling back to line mode", streamErr)
	raws, lineErrs = parseLines(data)
	for _, le := range lineErrs {
		logging.ParserWarn("%s", le)
	}
	return raws, finish(raws, lineErrs)
}

func finish(raws []Raw, lineErrs []LineError) error {
	if len(lineErrs) > 0 {
		return &ParseError{Lines: lineErrs}
	}
	if len(raws) == 0 {
		return &ParseError{Msg: "no commands"}
	}
	return nil
}

func parseArray(data []byte) ([]Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		offset := syntaxOffset(err, dec.InputOffset())
		return nil, &ParseError{
			Msg:   "input starts with '[' but is not a JSON array",
			Lines: []LineError{{Line: lineAt(data, offset), Offset: lineStart(data, offset), Err: err}},
		}
	}
	if tail := bytes.TrimSpace(data[dec.InputOffset():]); len(tail) > 0 {
		offset := dec.InputOffset()
		return nil, &ParseError{
			Msg:   "unexpected content after array",
			Lines: []LineError{{Line: lineAt(data, offset), Offset: lineStart(data, offset), Err: fmt.Errorf("trailing %q", truncate(tail, 20))}},
		}
	}

	// RawMessage elements hold the exact input bytes, so each element's
	// position is found by searching forward from the previous one.
	raws := make([]Raw, 0, len(items))
	var lineErrs []LineError
	searchFrom := 0
	for i, item := range items {
		pos := bytes.Index(data[searchFrom:], item)
		offset := int64(searchFrom)
		if pos >= 0 {
			offset += int64(pos)
			searchFrom += pos + len(item)
		}
		line := lineAt(data, offset)
		if !isObject(item) {
			lineErrs = append(lineErrs, LineError{Line: line, Offset: lineStart(data, offset), Err: fmt.Errorf("array element %d is not an object", i)})
			continue
		}
		raws = append(raws, Raw{Line: line, Object: item})
	}
	return raws, finish(raws, lineErrs)
}

// parseStream decodes consecutive JSON values. A syntax error aborts the
// whole stream so the caller can retry line by line.
func parseStream(data []byte) ([]Raw, []LineError, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raws []Raw
	var lineErrs []LineError

	for {
		var v json.RawMessage
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		end := dec.InputOffset()
		start := end - int64(len(v))
		line := lineAt(data, start)
		if !isObject(v) {
			lineErrs = append(lineErrs, LineError{Line: line, Offset: lineStart(data, start), Err: fmt.Errorf("value is not an object")})
			continue
		}
		raws = append(raws, Raw{Line: line, Object: v})
	}
	return raws, lineErrs, nil
}

// parseLines treats every non-blank line as one JSON object.
func parseLines(data []byte) ([]Raw, []LineError) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var raws []Raw
	var lineErrs []LineError
	var offset int64
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		text := scanner.Bytes()
		start := offset
		offset += int64(len(text)) + 1

		trimmed := bytes.TrimSpace(text)
		if len(trimmed) == 0 {
			continue
		}
		if !json.Valid(trimmed) {
			var v any
			err := json.Unmarshal(trimmed, &v)
			lineErrs = append(lineErrs, LineError{Line: lineNo, Offset: start, Err: err})
			continue
		}
		if !isObject(trimmed) {
			lineErrs = append(lineErrs, LineError{Line: lineNo, Offset: start, Err: fmt.Errorf("line is not a JSON object")})
			continue
		}
		raws = append(raws, Raw{Line: lineNo, Object: append(json.RawMessage(nil), trimmed...)})
	}
	if err := scanner.Err(); err != nil {
		lineErrs = append(lineErrs, LineError{Line: lineNo + 1, Offset: offset, Err: err})
	}
	return raws, lineErrs
}

func isObject(v []byte) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}

func syntaxOffset(err error, fallback int64) int64 {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return se.Offset
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return te.Offset
	}
	return fallback
}

// lineAt returns the 1-based line containing offset.
func lineAt(data []byte, offset int64) int {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if offset < 0 {
		offset = 0
	}
	return bytes.Count(data[:offset], []byte{'\n'}) + 1
}

// lineStart returns the byte offset of the start of the line containing offset.
func lineStart(data []byte, offset int64) int64 {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if offset <= 0 {
		return 0
	}
	return int64(bytes.LastIndexByte(data[:offset], '\n') + 1)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
