package isolate

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"
	"time"

	"grading_system/common/constants/verdict"
	"grading_system/invoker/sandbox"
	"grading_system/lib/customfields"
)

// parseMeta reads isolate meta file into result
func parseMeta(reader io.Reader, config *sandbox.ExecuteConfig, result *sandbox.RunResult) {
	var oomKilled, timedOut, failed bool

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 2)
		if len(parts) != 2 {
			result.Err = fmt.Errorf("can not parse meta file line %s", scanner.Text())
			return
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		var err error
		switch key {
		case "cg-mem":
			err = result.Statistics.Memory.FromStr(value + "k")
		case "cg-oom-killed":
			oomKilled = value == "1"
		case "exitcode":
			result.Statistics.ExitCode, err = strconv.Atoi(value)
		case "exitsig":
			result.Statistics.Signal, err = strconv.Atoi(value)
			failed = true
		case "status":
			switch value {
			case "RE", "SG":
				failed = true
			case "TO":
				timedOut = true
			case "XX":
				result.Err = fmt.Errorf("unknown error from isolate")
				return
			default:
				err = fmt.Errorf("unknown status")
			}
		case "time":
			result.Statistics.Time, err = parseSeconds(value)
		case "time-wall":
			result.Statistics.WallTime, err = parseSeconds(value)
		case "csw-forced", "csw-voluntary", "killed", "max-rss", "message":
			// skip
		default:
			err = fmt.Errorf("unknown key")
		}
		if err != nil {
			result.Err = fmt.Errorf("can not parse meta file line %s, error: %v", scanner.Text(), err)
			return
		}
	}

	switch {
	case result.Statistics.Signal == int(syscall.SIGXFSZ):
		result.Verdict = verdict.OLE
	case timedOut ||
		(config.TimeLimit != 0 && result.Statistics.Time > config.TimeLimit) ||
		(config.WallTimeLimit != 0 && result.Statistics.WallTime > config.WallTimeLimit):
		result.Verdict = verdict.TLE
	case oomKilled || (config.MemoryLimit != 0 && result.Statistics.Memory > config.MemoryLimit):
		result.Verdict = verdict.MLE
	case failed || result.Statistics.ExitCode != 0:
		result.Verdict = verdict.RTE
	default:
		result.Verdict = verdict.AC
	}
}

func parseSeconds(value string) (customfields.Time, error) {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return customfields.Time(seconds * float64(time.Second)), nil
}
