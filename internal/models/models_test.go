package models

import "testing"

func TestTaskStateTerminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{TaskPending, false},
		{TaskDownloading, false},
		{TaskUploading, false},
		{TaskDone, true},
		{TaskDownloadFailed, true},
		{TaskUploadFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("Expected %s terminal=%v, got %v", tt.state, tt.want, got)
		}
	}
}
