package unit

import (
	"time"

	"github.com/sirupsen/logrus"
)

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// logFields builds a logrus.Fields from alternating key/value pairs, a
// small convenience for call sites that only ever log a couple of
// fields and would rather not spell out a map literal each time.
func logFields(kv ...any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}
