package store

import (
	"context"

	"github.com/codr1/quadra/internal/models"
)

type TeamRepository interface {
	CreateTeam(ctx context.Context, name string, ownerID int64) (models.Team, error)
	GetTeam(ctx context.Context, id int64) (models.Team, error)
	AddTeamMember(ctx context.Context, arg models.TeamMember) error
	ListTeamMembers(ctx context.Context, teamID int64) ([]models.TeamMember, error)
}

func (q *Queries) CreateTeam(ctx context.Context, name string, ownerID int64) (models.Team, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO teams (name, owner_id) VALUES (?, ?)`, name, ownerID)
	if err != nil {
		return models.Team{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Team{}, err
	}
	return models.Team{ID: id, Name: name, OwnerID: ownerID}, nil
}

func (q *Queries) GetTeam(ctx context.Context, id int64) (models.Team, error) {
	var t models.Team
	err := q.db.QueryRowContext(ctx, `SELECT id, name, owner_id FROM teams WHERE id = ?`, id).Scan(&t.ID, &t.Name, &t.OwnerID)
	return t, err
}

func (q *Queries) AddTeamMember(ctx context.Context, arg models.TeamMember) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, fixed) VALUES (?, ?, ?)`,
		arg.TeamID, arg.UserID, arg.Fixed,
	)
	return err
}

// ListTeamMembers returns fixed members first, then the rest by user id.
func (q *Queries) ListTeamMembers(ctx context.Context, teamID int64) ([]models.TeamMember, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT team_id, user_id, fixed FROM team_members WHERE team_id = ? ORDER BY fixed DESC, user_id`,
		teamID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Fixed); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
