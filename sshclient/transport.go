package sshclient

import (
	"bytes"
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/ssh"
)

// buildAuthMethods translates a Security value into the auth methods
// golang.org/x/crypto/ssh's ClientConfig expects. A Key takes
// precedence over Password when both are set.
func buildAuthMethods(sec Security) ([]ssh.AuthMethod, error) {
	if sec.Key != "" {
		signer, err := ssh.ParsePrivateKey([]byte(sec.Key))
		if err != nil {
			return nil, newError(ErrKeyParse, "parse private key for auth", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(sec.Password)}, nil
}

// classifyHandshakeErr turns the single opaque error
// ssh.NewClientConn returns for both key-exchange and authentication
// failures into the taxonomy spec.md §5 expects. The library does not
// expose a typed distinction between the two, so this falls back to
// the message golang.org/x/crypto/ssh is known to produce on auth
// rejection.
func classifyHandshakeErr(err error) *Error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return newError(ErrAuth, "authentication rejected", err)
	}
	return newError(ErrTransport, "handshake failed", err)
}

// encodePtyRequest builds the pty-req channel request payload per
// RFC 4254 §6.2: TERM, the four size fields, then the encoded terminal
// modes string (opcode/uint32 pairs terminated by TTY_OP_END).
func encodePtyRequest(termName string, cols, rows, widthPx, heightPx uint32, modes []TerminalMode) []byte {
	var modesBuf bytes.Buffer
	for _, m := range modes {
		modesBuf.WriteByte(m.Opcode)
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], m.Value)
		modesBuf.Write(v[:])
	}
	modesBuf.WriteByte(0) // TTY_OP_END

	var buf bytes.Buffer
	writeWireString(&buf, []byte(termName))
	writeUint32(&buf, cols)
	writeUint32(&buf, rows)
	writeUint32(&buf, widthPx)
	writeUint32(&buf, heightPx)
	writeWireString(&buf, modesBuf.Bytes())
	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeWireString(buf *bytes.Buffer, s []byte) {
	writeUint32(buf, uint32(len(s)))
	buf.Write(s)
}
