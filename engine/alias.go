package engine

import (
	"bufio"
	"net"
	"strings"
)

const okStatusLine = "HTTP/1.0 200 OK\r\n"

// aliasConn rewrites the status line of the response if it starts with one of the aliases.
// Legacy streaming servers answer "ICY 200 OK" which net/http would otherwise reject.
type aliasConn struct {
	net.Conn
	aliases []string

	r       *bufio.Reader
	checked bool
	prefix  []byte
}

func newAliasConn(conn net.Conn, aliases []string) net.Conn {
	if len(aliases) == 0 {
		return conn
	}
	return &aliasConn{
		Conn:    conn,
		aliases: aliases,
		r:       bufio.NewReader(conn),
	}
}

func (c *aliasConn) Read(p []byte) (int, error) {
	if !c.checked {
		c.checked = true
		line, err := c.r.ReadSlice('\n')
		if isAlias(string(line), c.aliases) {
			c.prefix = []byte(okStatusLine)
		} else {
			c.prefix = append([]byte(nil), line...)
		}
		if len(c.prefix) == 0 && err != nil {
			return 0, err
		}
	}

	if len(c.prefix) > 0 {
		n := copy(p, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.r.Read(p)
}

func isAlias(line string, aliases []string) bool {
	line = strings.TrimRight(line, "\r\n")
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if len(line) >= len(alias) && strings.EqualFold(line[:len(alias)], alias) {
			return true
		}
	}
	return false
}
