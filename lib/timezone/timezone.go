package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Australia/Melbourne")
	if err != nil {
		panic(err)
	}
}

// force timestamps into the source site's timezone so that run stamps
// and scrape times stay comparable no matter where the job runs
func Now() time.Time {
	return time.Now().In(Location)
}
