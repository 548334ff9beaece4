package repository

import "github.com/jackc/pgx/v5/pgxpool"

type Repository struct {
	CapacityRepo CapacityRepositoryInterface
	WorkerRepo   WorkerRepositoryInterface
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{
		CapacityRepo: NewCapacityRepository(pool),
		WorkerRepo:   NewWorkerRepository(pool),
	}
}
