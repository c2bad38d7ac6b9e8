package systemd

import "testing"

func TestGetListeners_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners() error = %v", err)
	}
	if listeners.Activated || listeners.API != nil || listeners.Metrics != nil {
		t.Errorf("expected no activated listeners, got %+v", listeners)
	}
}

func TestNotify_OutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	for name, notify := range map[string]func() error{
		"ready":     NotifyReady,
		"reloading": NotifyReloading,
		"stopping":  NotifyStopping,
		"watchdog":  NotifyWatchdog,
	} {
		if err := notify(); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}

	if got := WatchdogInterval(); got != 0 {
		t.Errorf("WatchdogInterval() = %v, want 0", got)
	}
}
