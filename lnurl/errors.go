package lnurl

import "fmt"

// ProtocolError reports a missing or malformed request parameter. It is
// raised before any business state is touched.
type ProtocolError struct {
	Param  string
	Reason string
}

func (err ProtocolError) Error() string {
	if err.Param == "" {
		return err.Reason
	}

	return fmt.Sprintf("invalid parameter %s: %s", err.Param, err.Reason)
}

func MissingParam(param string) ProtocolError {
	return ProtocolError{Param: param, Reason: "missing"}
}

func MalformedParam(param string, reason string) ProtocolError {
	return ProtocolError{Param: param, Reason: reason}
}
