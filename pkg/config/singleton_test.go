package config

import "testing"

func TestSetAndGetConfig(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	cfg := Default()
	SetConfig(cfg)

	if GetConfig() != cfg {
		t.Error("GetConfig() did not return the stored configuration")
	}
	if MustGetConfig() != cfg {
		t.Error("MustGetConfig() did not return the stored configuration")
	}
}

func TestMustGetConfig_PanicsWhenUnset(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)
	SetConfig(nil)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustGetConfig()
}

func TestReloadConfig_KeepsPreviousOnError(t *testing.T) {
	prev := GetConfig()
	defer SetConfig(prev)

	cfg := Default()
	SetConfig(cfg)

	if err := ReloadConfig(writeConfig(t, "store:\n  batch_size: 99\n")); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig() != cfg {
		t.Error("configuration replaced after failed reload")
	}

	if err := ReloadConfig(writeConfig(t, "store:\n  batch_size: 5\n")); err != nil {
		t.Fatalf("ReloadConfig() error = %v", err)
	}
	if GetConfig().Store.BatchSize != 5 {
		t.Errorf("expected reloaded batch size 5, got %d", GetConfig().Store.BatchSize)
	}
}
