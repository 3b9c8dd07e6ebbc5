package cache

import (
	"fmt"
	"strings"
)

// Key joins a namespace and its parts with ':'.
func Key(namespace string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// Pattern matches every key under namespace.
func Pattern(namespace string) string {
	return namespace + ":*"
}
