package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
)

func TestMutation_Validate(t *testing.T) {
	key := card.Key{VID: 1, SID: 2}
	tests := []struct {
		name    string
		m       Mutation
		wantErr bool
	}{
		{"add", Mutation{Key: key, Action: ActionAdd}, false},
		{"never forget", Mutation{Key: key, Action: ActionNeverForget}, false},
		{"review", Mutation{Key: key, Action: ActionReview, Grade: GradeEasy}, false},
		{"review without grade", Mutation{Key: key, Action: ActionReview}, true},
		{"grade on add", Mutation{Key: key, Action: ActionAdd, Grade: GradeFail}, true},
		{"unknown action", Mutation{Key: key, Action: "burn"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMutation_String(t *testing.T) {
	require.Equal(t, "review 1/2 (okay)", Mutation{Key: card.Key{VID: 1, SID: 2}, Action: ActionReview, Grade: GradeOkay}.String())
	require.Equal(t, "add 1/2", Mutation{Key: card.Key{VID: 1, SID: 2}, Action: ActionAdd}.String())
}
