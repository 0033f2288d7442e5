package interview

import "errors"

var (
	ErrConfigMissingOrMismatched = errors.New("interview config missing or mismatched")
	ErrTransportNotReady         = errors.New("call transport not ready")
	ErrCallStart                 = errors.New("call start failed")
	ErrEndpoint                  = errors.New("feedback endpoint failed")
	ErrMissingContent            = errors.New("feedback content missing or invalid")
	ErrParse                     = errors.New("could not parse feedback")
	ErrPersistence               = errors.New("persisting result failed")
)
