package common

import (
	"time"

	"github.com/sugawarayuuta/sonnet"
)

type Duration time.Duration

func ParseDuration(s string) (Duration, error) {
	pd, err := time.ParseDuration(s)
	return Duration(pd), err
}

func (d *Duration) MarshalJSON() ([]byte, error) {
	return sonnet.Marshal(time.Duration(*d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	s := ""
	if err := sonnet.Unmarshal(data, &s); err != nil {
		return err
	}
	if pd, err := time.ParseDuration(s); err != nil {
		return err
	} else {
		*d = Duration(pd)
		return nil
	}
}

func (d Duration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
