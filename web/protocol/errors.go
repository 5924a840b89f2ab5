/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks input the decoder refused. The connection still gets a best effort response.
	ErrMalformed = errors.New("malformed request")

	ErrInvalidChunk   = fmt.Errorf("%w: invalid chunk size", ErrMalformed)
	ErrHeaderTooLarge = fmt.Errorf("%w: request header too large", ErrMalformed)
	ErrBodyTooLarge   = fmt.Errorf("%w: request body too large", ErrMalformed)

	// ErrEmptyRequest means the peer closed before sending a request line.
	ErrEmptyRequest = errors.New("empty request")
)

// IsMalformed reports whether err came from bad request framing rather than from the transport.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}
