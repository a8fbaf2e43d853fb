// ABOUTME: Tests for converting conversations to and from store records
// ABOUTME: Covers corrupt states, legacy rows without a branch and typed details

package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/intake-bot/internal/store"
)

func TestRecordRoundTrip(t *testing.T) {
	flow := DefaultFlow()
	menuAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	conv := Conversation{
		UserID:     12,
		State:      StateBuild2,
		Topic:      "Оформление/реконструкция",
		Branch:     BranchBuild,
		Details:    &BuildDetails{ObjectType: "Жилой дом — реконструкция"},
		LastMenuAt: menuAt,
	}

	rec := conv.Record()
	assert.Equal(t, "BUILD_2", rec.State)
	assert.Equal(t, "build", rec.Branch)
	assert.Equal(t, map[string]string{"build_type": "Жилой дом — реконструкция"}, rec.Data)

	back := flow.Restore(rec)
	assert.Equal(t, conv, back)
}

func TestRestore_UnknownStateDecaysToStart(t *testing.T) {
	flow := DefaultFlow()
	menuAt := time.Now().UTC()

	conv := flow.Restore(&store.Conversation{
		UserID:     4,
		State:      "SOMETHING_REMOVED",
		Topic:      "Перепланировка",
		Data:       map[string]string{"replan_type": "жилое"},
		Phone:      "+79001234567",
		LastMenuAt: menuAt,
	})

	assert.Equal(t, StateStart, conv.State)
	assert.Empty(t, conv.Topic)
	assert.Empty(t, conv.Phone)
	assert.Nil(t, conv.Details)
	assert.Equal(t, menuAt, conv.LastMenuAt)
}

func TestRestore_LegacyRowWithoutBranch(t *testing.T) {
	flow := DefaultFlow()

	t.Run("resolved from step state", func(t *testing.T) {
		conv := flow.Restore(&store.Conversation{
			UserID: 1,
			State:  "PRIREZ_2",
			Topic:  "Прирезка",
			Data:   map[string]string{"prirez_purpose": "ИЖС", "stray": "x"},
		})
		assert.Equal(t, BranchAllotment, conv.Branch)
		assert.Equal(t, "ИЖС", GetField(conv.Details, FieldPrirezPurpose))
		assert.NotContains(t, DetailsToMap(conv.Details), "stray")
	})

	t.Run("resolved from topic in tail state", func(t *testing.T) {
		conv := flow.Restore(&store.Conversation{
			UserID: 1,
			State:  "LEAD_TIME",
			Topic:  "Земельный спор",
			Data:   map[string]string{"land_settlement": "Ставрополь", "land_desc": "спор с соседом"},
			Phone:  "+79001234567",
		})
		assert.Equal(t, BranchLand, conv.Branch)
		assert.Equal(t, "спор с соседом", GetField(conv.Details, FieldLandDesc))
	})

	t.Run("contact topic", func(t *testing.T) {
		conv := flow.Restore(&store.Conversation{
			UserID: 1,
			State:  "LEAD_PHONE_INPUT",
			Topic:  "Связаться с юристом",
		})
		assert.Equal(t, BranchContact, conv.Branch)
		require.NotNil(t, conv.Details)
	})

	t.Run("unknown topic", func(t *testing.T) {
		conv := flow.Restore(&store.Conversation{
			UserID: 1,
			State:  "LEAD_TIME",
			Topic:  "Что-то старое",
		})
		assert.Empty(t, conv.Branch)
		assert.Nil(t, conv.Details)
		assert.Equal(t, "Что-то старое", conv.Topic)
	})
}

func TestDetailsMapConversion(t *testing.T) {
	d := DetailsFromMap(BranchConstruction, map[string]string{
		"const_role":  "Поставщик",
		"const_issue": "",
		"replan_type": "жилое",
	})
	require.IsType(t, &ConstructionDetails{}, d)
	assert.Equal(t, "Поставщик", d.(*ConstructionDetails).Role)
	assert.Equal(t, map[string]string{"const_role": "Поставщик"}, DetailsToMap(d))

	assert.True(t, SetField(d, FieldConstIssue, "Срыв сроков / штрафы / неустойка"))
	assert.False(t, SetField(d, FieldTaxInput, "x"))
	assert.False(t, SetField(nil, FieldTaxInput, "x"))
	assert.Nil(t, DetailsFromMap("unknown", nil))
}

func TestOperatorSummary(t *testing.T) {
	got := OperatorSummary(
		"Земельный спор – Ставрополь – граница участка",
		"+7 900 123-45-67",
		"Утром (09:00–12:00)",
		&LandDetails{Settlement: "Ставрополь", Description: "граница участка"},
	)

	want := "[ЗАЯВКА]\n" +
		"📌 Тема: Земельный спор – Ставрополь – граница участка\n" +
		"📞 Телефон: +7 900 123-45-67\n" +
		"🕒 Время: Утром (09:00–12:00)\n" +
		"🗂 Данные:\n" +
		"• Нас. пункт: Ставрополь\n" +
		"• Ситуация: граница участка"
	assert.Equal(t, want, got)

	empty := OperatorSummary("Связаться с юристом", "1", "Не важно", nil)
	assert.Contains(t, empty, "🗂 Данные:\n• —")
}

func TestMessage_WithoutLinks(t *testing.T) {
	msg := Message{
		Text: "hi",
		Keyboard: [][]Button{
			{LinkButton("site", "https://example.com")},
			{MessageButton("a"), LinkButton("b", "https://b")},
		},
	}
	require.True(t, msg.HasLinks())

	stripped := msg.WithoutLinks()
	assert.False(t, stripped.HasLinks())
	assert.Equal(t, [][]Button{{MessageButton("a")}}, stripped.Keyboard)
	assert.Len(t, msg.Keyboard, 2, "original untouched")
}
