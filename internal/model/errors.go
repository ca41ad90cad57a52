package model

import "github.com/rotisserie/eris"

// ErrInvalidQuery is returned when a resolution query carries neither text
// nor a usable external identifier.
var ErrInvalidQuery = eris.New("resolution query must include raw_text or external_id with authority_hint")

// ErrMalformedResponse marks an authority payload that could not be
// decoded. Malformed payloads are data problems, not availability
// problems: they are logged and dropped, and must not trip a breaker.
var ErrMalformedResponse = eris.New("malformed authority response")
