package cdp

import (
	"encoding/json"
	"strings"
)

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// JSString encodes v as a JavaScript string literal.
func JSString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// JSJSON encodes v as a JavaScript literal.
func JSJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// WrapScript wraps body in an IIFE that turns thrown errors into an
// error envelope. body must return JSON.stringify({ok:..., ...}).
func WrapScript(body string) string {
	return `(function(){
try {
` + strings.TrimSpace(body) + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return NewError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return NewError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return NewError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}
