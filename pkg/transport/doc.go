// Package transport provides the byte transport to the board.
//
// The core only needs a reliable, ordered byte stream with a read timeout:
//
//	type Port interface {
//	    Read(p []byte) (int, error)   // returns 0, nil on timeout
//	    Write(p []byte) (int, error)
//	    Close() error
//	}
//
// Open connects to a real serial port through go.bug.st/serial. Tests use
// the mockery-generated mocks.MockPort or the in-memory firmware simulator in
// the transporttest package.
package transport
