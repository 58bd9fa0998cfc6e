package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"duet/internal/api"
	"duet/internal/config"
	"duet/internal/models"
)

// AddConversation asks the running server's admin API to create a
// conversation between the comma separated participants.
func AddConversation(participants string, cfg *config.Server) error {
	var ids []models.Identity
	for _, p := range strings.Split(participants, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, models.Identity(p))
		}
	}
	if len(ids) != 2 {
		return fmt.Errorf("expected two participants like \"alice,bob\", got %q", participants)
	}

	reqBody, err := json.Marshal(api.AddConversationRequest{Participants: ids})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/conversations", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add conversation (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nConversation Created Successfully!\n")
	fmt.Printf("ID:           %s\n", result.ID)
	fmt.Printf("Participants: %s, %s\n", ids[0], ids[1])
	if result.TranscriptURL != "" {
		fmt.Printf("Transcript:   %s\n", result.TranscriptURL)
	}
	fmt.Println()
	return nil
}
