package models

import (
	"fmt"
	"time"
)

// Direction: сторона бинарного опциона.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

type Meridiem string

const (
	AM Meridiem = "AM"
	PM Meridiem = "PM"
)

// TimeOfDay: время входа из сигнала, 12-часовой формат.
type TimeOfDay struct {
	Hour     int // 1..12
	Minute   int // 0..59
	Meridiem Meridiem
}

// Hour24 переводит 12:xx AM -> 0, 12:xx PM -> 12, 1:xx PM -> 13.
func (t TimeOfDay) Hour24() int {
	h := t.Hour % 12
	if t.Meridiem == PM {
		h += 12
	}
	return h
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%d:%02d %s", t.Hour, t.Minute, t.Meridiem)
}

// TimeOfDayFrom24: для компактного формата HH:MM.
func TimeOfDayFrom24(hour, minute int) TimeOfDay {
	m := AM
	if hour >= 12 {
		m = PM
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return TimeOfDay{Hour: h, Minute: minute, Meridiem: m}
}

// TradeIntent: распарсенный сигнал. После создания не меняется.
type TradeIntent struct {
	Asset           string // "AUD/JPY-OTC"
	Direction       Direction
	EntryTimeOfDay  TimeOfDay
	DurationSeconds int
	Source          string // channel | manual
}

func (i TradeIntent) Duration() time.Duration {
	return time.Duration(i.DurationSeconds) * time.Second
}

func (i TradeIntent) String() string {
	return fmt.Sprintf("%s %s @ %s (%dm)", i.Asset, i.Direction, i.EntryTimeOfDay, i.DurationSeconds/60)
}
