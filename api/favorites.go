package main

import "context"

// toggleFavorite flips the favorite flag under the same guard as update.
// Two toggles cancel out on the task but never in the history: every
// toggle is logged with the value it produced.
func (s *taskStore) toggleFavorite(ctx context.Context, caller principal, id int) (*task, error) {
	return s.store.withTask(ctx, id, func(t *task) ([]changeEntry, error) {
		err := authorize(caller, t.UserID)
		if err != nil {
			return nil, err
		}
		t.IsFavorite = !t.IsFavorite
		return []changeEntry{favoriteToggledEntry(t.ID, caller.UserID, t.IsFavorite)}, nil
	})
}
