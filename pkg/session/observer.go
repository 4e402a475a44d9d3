package session

import "github.com/teslashibe/wingman/pkg/extract"

// Observer receives controller output. Methods run on the controller
// goroutine; they must return quickly and must not call back into the
// controller.
type Observer interface {
	OnState(State)
	OnHUD(extract.HUD)
	OnLogEntry(extract.LogEntry)
	OnStatus(Status)
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) OnState(s State) {
	for _, obs := range o {
		obs.OnState(s)
	}
}

func (o Observers) OnHUD(h extract.HUD) {
	for _, obs := range o {
		obs.OnHUD(h)
	}
}

func (o Observers) OnLogEntry(e extract.LogEntry) {
	for _, obs := range o {
		obs.OnLogEntry(e)
	}
}

func (o Observers) OnStatus(s Status) {
	for _, obs := range o {
		obs.OnStatus(s)
	}
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	State    func(State)
	HUD      func(extract.HUD)
	LogEntry func(extract.LogEntry)
	Status   func(Status)
}

func (f ObserverFuncs) OnState(s State) {
	if f.State != nil {
		f.State(s)
	}
}

func (f ObserverFuncs) OnHUD(h extract.HUD) {
	if f.HUD != nil {
		f.HUD(h)
	}
}

func (f ObserverFuncs) OnLogEntry(e extract.LogEntry) {
	if f.LogEntry != nil {
		f.LogEntry(e)
	}
}

func (f ObserverFuncs) OnStatus(s Status) {
	if f.Status != nil {
		f.Status(s)
	}
}
