package httpsig

import "strings"

// SignatureParams are the parsed parameters of one Signature header.
// They exist only for the duration of one verification call.
type SignatureParams struct {
	KeyID     string
	Signature string
	// Headers is the ordered list of signed header names; defaults to
	// ["date"] when the parameter is absent.
	Headers []string
}

// parseSignatureParams parses the comma-separated `key="value"`
// parameters of a Signature header.
func parseSignatureParams(header string) SignatureParams {
	params := map[string]string{}
	for _, param := range strings.Split(header, ",") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		key, value, found := strings.Cut(param, "=")
		if !found {
			params[param] = ""
			continue
		}
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		params[key] = value
	}

	out := SignatureParams{
		KeyID:     params["keyId"],
		Signature: params["signature"],
	}
	if headers, ok := params["headers"]; ok && headers != "" {
		out.Headers = strings.Split(headers, " ")
	} else {
		out.Headers = []string{"date"}
	}
	return out
}
