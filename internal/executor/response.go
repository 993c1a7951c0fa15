package executor

import (
	"bytes"
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"yqhp/loadgen/pkg/types"
)

// Response 是解码后的响应
type Response struct {
	types.RequestResult

	Body []byte

	// JSON 为 BodyJSON 请求解析出的文档
	JSON any
	// Families 为 BodyPrometheus 请求解析出的指标族
	Families map[string]*dto.MetricFamily
}

// SuccessStatus reports whether status counts as a successful response.
// 3xx is included because redirects are not followed.
func SuccessStatus(status int) bool {
	return status >= 200 && status < 400
}

func (r *Response) decode(kind BodyKind) {
	if !SuccessStatus(r.Status) {
		r.Outcome = types.OutcomeBadStatus
		r.Error = fmt.Sprintf("unexpected status %d", r.Status)
		// 错误响应体若是 JSON 仍然解析，便于检查读取字段
		if kind == BodyJSON {
			if doc, err := oj.Parse(r.Body); err == nil {
				r.JSON = doc
			}
		}
		return
	}

	r.Outcome = types.OutcomeOK
	switch kind {
	case BodyJSON:
		doc, err := oj.Parse(r.Body)
		if err != nil {
			r.Outcome = types.OutcomeMalformedBody
			r.Error = fmt.Sprintf("invalid JSON body: %v", err)
			return
		}
		r.JSON = doc
	case BodyPrometheus:
		parser := expfmt.NewTextParser(model.UTF8Validation)
		families, err := parser.TextToMetricFamilies(bytes.NewReader(r.Body))
		if err != nil {
			r.Outcome = types.OutcomeMalformedBody
			r.Error = fmt.Sprintf("invalid exposition format: %v", err)
			return
		}
		if len(families) == 0 {
			r.Outcome = types.OutcomeMalformedBody
			r.Error = "exposition contains no metric families"
			return
		}
		r.Families = families
	}
}

// OK reports whether the request succeeded and the body decoded.
func (r *Response) OK() bool {
	return r.Outcome == types.OutcomeOK
}

// RequestFailed reports whether the request itself failed: no response or
// an unsuccessful status. A malformed body is a check failure, not a
// failed request.
func (r *Response) RequestFailed() bool {
	return r.Outcome.RequestFailed()
}

// Get evaluates a JSONPath expression against the decoded JSON body.
// It returns nil when the body is not JSON.
func (r *Response) Get(path jp.Expr) []any {
	if r.JSON == nil {
		return nil
	}
	return path.Get(r.JSON)
}

// Has reports whether the JSONPath expression matches at least one value.
func (r *Response) Has(path jp.Expr) bool {
	return len(r.Get(path)) > 0
}

// First returns the first value matched by the JSONPath expression.
func (r *Response) First(path jp.Expr) (any, bool) {
	values := r.Get(path)
	if len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

// IsArray reports whether the first match of path is a JSON array.
func (r *Response) IsArray(path jp.Expr) bool {
	v, ok := r.First(path)
	if !ok {
		return false
	}
	_, isArray := v.([]any)
	return isArray
}

// IsString reports whether the first match of path is a non-empty string.
func (r *Response) IsString(path jp.Expr) bool {
	v, ok := r.First(path)
	if !ok {
		return false
	}
	s, isString := v.(string)
	return isString && s != ""
}
