package headers

import (
	"strconv"
	"strings"
)

// MessageIDFunc builds the Message-ID for one recipient of a job.
// Implementations must be deterministic and always succeed.
type MessageIDFunc func(tag string, jobID, queueID int64, hash string) string

// VERPMessageID returns the default Message-ID rule: the localpart suffixed
// with tag, the job id, the queue id and the hash, joined by separator and
// qualified with domain.
//
//	VERPMessageID("civimail", "example.org", ".")("m", 42, 7, "abc123")
//	  == "<civimailm.42.7.abc123@example.org>"
func VERPMessageID(localpart, domain, separator string) MessageIDFunc {
	return func(tag string, jobID, queueID int64, hash string) string {
		parts := []string{
			localpart + tag,
			strconv.FormatInt(jobID, 10),
			strconv.FormatInt(queueID, 10),
			hash,
		}
		return "<" + strings.Join(parts, separator) + "@" + domain + ">"
	}
}
