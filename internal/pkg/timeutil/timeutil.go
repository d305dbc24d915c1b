package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

// NowUnixMilli is the clock used for message ctime; millisecond resolution keeps
// turns of one exchange distinguishable.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
