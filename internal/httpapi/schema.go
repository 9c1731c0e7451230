package httpapi

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const loginSchemaJSON = `{
  "type": "object",
  "required": ["email", "password"],
  "properties": {
    "email":    {"type": "string", "minLength": 1, "maxLength": 320},
    "password": {"type": "string", "minLength": 1, "maxLength": 1024}
  }
}`

var loginSchema = mustSchema(loginSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic("httpapi: invalid schema: " + err.Error())
	}
	return schema
}

// validateLogin checks body against the login schema. The returned string
// lists the offending fields for the log; it never reaches the client.
func validateLogin(body []byte) (bool, string) {
	res, err := loginSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false, err.Error()
	}
	if res.Valid() {
		return true, ""
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return false, strings.Join(msgs, "; ")
}
