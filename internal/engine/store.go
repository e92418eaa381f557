package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Size tiers reported in store and update envelopes. The tier picks how the
// default summary is produced; the stored summary type stays uniform so the
// default-summary lookup is deterministic.
const (
	tierTiny  = "tiny"
	tierSmall = "small"
	tierLarge = "large"
)

// Store persists new content under a topic, mirrors it into the vector
// store, and writes a default summary. Vector and summary failures degrade
// to warnings on a successful envelope; the relational write is canonical.
func (e *Engine) Store(ctx context.Context, content, topic string, tags []string) types.Response {
	if content == "" {
		return invalidArgument("Content must not be empty")
	}
	if topic == "" {
		return invalidArgument("Topic must not be empty")
	}
	tags, err := types.ValidateTags(tags)
	if err != nil {
		return invalidArgument(err.Error())
	}

	now := types.Timestamp()
	item := &types.MemoryItem{
		ID:        types.NewID(),
		Content:   content,
		Topic:     topic,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	if err := e.relational.AddMemory(ctx, item); err != nil {
		return storeError("Failed to store content", err)
	}

	var warnings []string
	if err := e.vectors.UpsertMemory(ctx, item); err != nil {
		warnings = appendWarning(warnings, "memory embedding not stored: %v", err)
	}
	if err := e.vectors.UpsertTopic(ctx, topic, tags); err != nil {
		warnings = appendWarning(warnings, "topic embedding not stored: %v", err)
	}

	summaryGenerated := false
	var summaryID string
	text, tier, err := e.defaultSummary(ctx, content)
	if err != nil {
		warnings = appendWarning(warnings, "summary not generated: %v", err)
	} else {
		s := &types.Summary{
			ID:          types.NewID(),
			MemoryID:    item.ID,
			SummaryType: types.SummaryTypeDefault,
			SummaryText: text,
			CreatedAt:   types.Timestamp(),
			UpdatedAt:   types.Timestamp(),
		}
		if err := e.relational.AddSummary(ctx, s); err != nil {
			warnings = appendWarning(warnings, "summary not stored: %v", err)
		} else {
			summaryGenerated = true
			summaryID = s.ID
			if err := e.vectors.UpsertSummary(ctx, s, topic); err != nil {
				warnings = appendWarning(warnings, "summary embedding not stored: %v", err)
			}
		}
	}

	e.tick(ctx)

	data := map[string]interface{}{
		"memory_id":         item.ID,
		"topic":             item.Topic,
		"tags":              item.Tags,
		"timestamp":         item.CreatedAt,
		"content_size":      len(content),
		"summary_generated": summaryGenerated,
		"summary_tier":      tier,
	}
	if summaryID != "" {
		data["summary_id"] = summaryID
	}
	if len(warnings) > 0 {
		data["warning"] = strings.Join(warnings, "; ")
	}
	return types.OK("Content stored successfully", data)
}

// Update applies a partial change to a memory item. The relational update
// is canonical; the vector mirror is refreshed afterwards, re-embedding only
// when the content actually changed. A content change regenerates the
// default summary in place, keeping its id stable.
func (e *Engine) Update(ctx context.Context, id string, upd storage.MemoryUpdate) types.Response {
	if id == "" {
		return invalidArgument("Memory id must not be empty")
	}
	if upd.Empty() {
		return invalidArgument("Update must change at least one of content, topic, or tags")
	}
	if upd.Content != nil && *upd.Content == "" {
		return invalidArgument("Content must not be empty")
	}
	if upd.Topic != nil && *upd.Topic == "" {
		return invalidArgument("Topic must not be empty")
	}
	if upd.Tags != nil {
		tags, err := types.ValidateTags(upd.Tags)
		if err != nil {
			return invalidArgument(err.Error())
		}
		upd.Tags = tags
	}

	old, err := e.relational.GetMemory(ctx, id)
	if err != nil {
		return storeError("Failed to update memory item", err)
	}

	updated, err := e.relational.UpdateMemory(ctx, id, upd)
	if err != nil {
		return storeError("Failed to update memory item", err)
	}

	// Diff against the previous row rather than trusting the request:
	// setting a field to its current value is not a change.
	contentChanged := updated.Content != old.Content
	topicChanged := updated.Topic != old.Topic

	var warnings []string
	if err := e.vectors.UpdateMemory(ctx, updated, contentChanged); err != nil {
		warnings = appendWarning(warnings, "memory embedding not refreshed: %v", err)
	}
	if topicChanged {
		if err := e.vectors.UpsertTopic(ctx, updated.Topic, updated.Tags); err != nil {
			warnings = appendWarning(warnings, "topic embedding not stored: %v", err)
		}
		warnings = e.cleanupTopicVector(ctx, old.Topic, warnings)
	}

	data := map[string]interface{}{
		"memory_id": updated.ID,
		"topic":     updated.Topic,
		"tags":      updated.Tags,
		"version":   updated.Version,
		"timestamp": updated.UpdatedAt,
	}

	if contentChanged {
		generated, summaryID, tier, w := e.regenerateSummary(ctx, updated)
		warnings = append(warnings, w...)
		data["summary_generated"] = generated
		data["summary_tier"] = tier
		if summaryID != "" {
			data["summary_id"] = summaryID
		}
	} else if topicChanged {
		// The summary embedding carries the owning topic for filtered
		// search; moving the memory must move its summary too.
		if s, err := e.relational.GetSummaryByType(ctx, id, types.SummaryTypeDefault); err == nil {
			if err := e.vectors.UpsertSummary(ctx, s, updated.Topic); err != nil {
				warnings = appendWarning(warnings, "summary embedding not refreshed: %v", err)
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			warnings = appendWarning(warnings, "summary lookup failed: %v", err)
		}
	}

	e.tick(ctx)

	if len(warnings) > 0 {
		data["warning"] = strings.Join(warnings, "; ")
	}
	return types.OK("Memory item updated successfully", data)
}

// Delete removes a memory item, its summaries, and their vector mirrors.
//
// The summary ids must be enumerated before the relational delete: the
// cascade removes the summary rows, and without the recorded ids their
// embeddings could never be cleaned up.
func (e *Engine) Delete(ctx context.Context, id string) types.Response {
	if id == "" {
		return invalidArgument("Memory id must not be empty")
	}

	item, err := e.relational.GetMemory(ctx, id)
	if err != nil {
		return storeError("Failed to delete memory item", err)
	}

	summaries, err := e.relational.ListSummaries(ctx, id)
	if err != nil {
		return storeError("Failed to delete memory item", err)
	}
	summaryIDs := make([]string, 0, len(summaries))
	for _, s := range summaries {
		summaryIDs = append(summaryIDs, s.ID)
	}

	if err := e.relational.DeleteMemory(ctx, id); err != nil {
		return storeError("Failed to delete memory item", err)
	}

	var warnings []string
	if err := e.vectors.DeleteMemory(ctx, id); err != nil {
		warnings = appendWarning(warnings, "memory embedding not deleted: %v", err)
	}
	for _, sid := range summaryIDs {
		if err := e.vectors.DeleteSummary(ctx, sid); err != nil {
			warnings = appendWarning(warnings, "summary embedding %s not deleted: %v", sid, err)
		}
	}
	warnings = e.cleanupTopicVector(ctx, item.Topic, warnings)

	e.tick(ctx)

	data := map[string]interface{}{
		"memory_id":         id,
		"summaries_deleted": len(summaryIDs),
	}
	if len(warnings) > 0 {
		data["warning"] = strings.Join(warnings, "; ")
	}
	return types.OK(fmt.Sprintf("Memory item %s and its summaries deleted successfully", id), data)
}

// defaultSummary produces the default summary text for new or changed
// content, picking the summarization strategy by content size. Tiny content
// is its own summary and never touches the summarizer.
func (e *Engine) defaultSummary(ctx context.Context, content string) (text, tier string, err error) {
	switch {
	case len(content) < e.cfg.Retrieval.TinyContentThreshold:
		return content, tierTiny, nil
	case len(content) < e.cfg.Retrieval.SmallContentThreshold:
		text, err = e.summarizer.Summarize(ctx, content, "extractive", "short", "")
		return text, tierSmall, err
	default:
		text, err = e.summarizer.Summarize(ctx, content, "abstractive", "medium", "")
		return text, tierLarge, err
	}
}

// regenerateSummary rebuilds the default summary after a content change.
// An existing summary row is rewritten in place so its id stays stable and
// the vector upsert overwrites instead of duplicating.
func (e *Engine) regenerateSummary(ctx context.Context, item *types.MemoryItem) (generated bool, summaryID string, tier string, warnings []string) {
	text, tier, err := e.defaultSummary(ctx, item.Content)
	if err != nil {
		return false, "", tier, appendWarning(nil, "summary not regenerated: %v", err)
	}

	existing, err := e.relational.GetSummaryByType(ctx, item.ID, types.SummaryTypeDefault)
	switch {
	case err == nil:
		s, uerr := e.relational.UpdateSummaryText(ctx, existing.ID, text)
		if uerr != nil {
			return false, "", tier, appendWarning(nil, "summary not updated: %v", uerr)
		}
		if verr := e.vectors.UpsertSummary(ctx, s, item.Topic); verr != nil {
			warnings = appendWarning(warnings, "summary embedding not refreshed: %v", verr)
		}
		return true, s.ID, tier, warnings

	case errors.Is(err, storage.ErrNotFound):
		s := &types.Summary{
			ID:          types.NewID(),
			MemoryID:    item.ID,
			SummaryType: types.SummaryTypeDefault,
			SummaryText: text,
			CreatedAt:   types.Timestamp(),
			UpdatedAt:   types.Timestamp(),
		}
		if aerr := e.relational.AddSummary(ctx, s); aerr != nil {
			return false, "", tier, appendWarning(nil, "summary not stored: %v", aerr)
		}
		if verr := e.vectors.UpsertSummary(ctx, s, item.Topic); verr != nil {
			warnings = appendWarning(warnings, "summary embedding not stored: %v", verr)
		}
		return true, s.ID, tier, warnings

	default:
		return false, "", tier, appendWarning(nil, "summary lookup failed: %v", err)
	}
}

// cleanupTopicVector drops the topic embedding when the topic row no longer
// exists, so emptied topics do not linger in similarity results.
func (e *Engine) cleanupTopicVector(ctx context.Context, topic string, warnings []string) []string {
	_, err := e.relational.GetTopic(ctx, topic)
	if err == nil {
		return warnings
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return appendWarning(warnings, "topic lookup failed: %v", err)
	}
	if err := e.vectors.DeleteTopic(ctx, topic); err != nil {
		return appendWarning(warnings, "topic embedding not deleted: %v", err)
	}
	return warnings
}

// appendWarning records a partial-write warning in the envelope list and
// mirrors it to the log so drift is visible without inspecting responses.
func appendWarning(warnings []string, format string, args ...interface{}) []string {
	msg := fmt.Sprintf(format, args...)
	log.Printf("engine: %s", msg)
	return append(warnings, msg)
}
