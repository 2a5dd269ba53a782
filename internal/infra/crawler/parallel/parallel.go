package parallel

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/pacer"
	"github.com/LouYuanbo1/dirscraper/internal/infra/crawler/profile"
)

// Session 一个 worker 独占的会话: 渲染面、身份与请求节奏
type Session struct {
	ID      int
	Surface chrome.Surface
	Profile profile.Profile
	Pacer   *pacer.Pacer
}

func (s *Session) Close() error {
	return s.Surface.Close()
}

// SessionFactory 为 worker 创建会话,启动失败返回 *chrome.SessionInitError
type SessionFactory interface {
	Open(ctx context.Context, workerID int) (*Session, error)
}

// ErrAllSessionsLost 所有 worker 都没能启动会话
var ErrAllSessionsLost = errors.New("all sessions failed to start")

// Run 启动至多 workers 个 worker,每个 worker 打开自己的会话后从任务通道拉取任务。
// 单个 worker 启动失败只降低并行度;ctx 取消后 worker 不再拉取新任务,已完成的结果照常返回。
func Run[T, R any](ctx context.Context, factory SessionFactory, workers int, tasks []T, logger logrus.FieldLogger, handle func(ctx context.Context, s *Session, task T) R) ([]R, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	workers = max(1, min(workers, len(tasks)))

	taskCh := make(chan T, len(tasks))
	for _, t := range tasks {
		taskCh <- t
	}
	close(taskCh)

	resultCh := make(chan R, len(tasks))
	errCh := make(chan error, workers)

	// 不用 errgroup.WithContext: 一个会话启动失败不能取消其他 worker
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range workers {
		workerID := i
		g.Go(func() error {
			log := logger.WithField("worker_id", workerID)
			sess, err := factory.Open(ctx, workerID)
			if err != nil {
				var initErr *chrome.SessionInitError
				if !errors.As(err, &initErr) {
					err = &chrome.SessionInitError{Worker: workerID, Err: err}
				}
				log.WithError(err).Warn("session lost, continuing with reduced parallelism")
				errCh <- err
				return err
			}
			defer func() {
				if err := sess.Close(); err != nil {
					log.WithError(err).Debug("close session")
				}
			}()

			for {
				if ctx.Err() != nil {
					log.Info("cancelled, worker stops pulling tasks")
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case task, ok := <-taskCh:
					if !ok {
						return nil
					}
					resultCh <- handle(ctx, sess, task)
				}
			}
		})
	}
	firstLost := g.Wait()
	close(resultCh)
	close(errCh)

	results := make([]R, 0, len(tasks))
	for r := range resultCh {
		results = append(results, r)
	}
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) == workers {
		return results, fmt.Errorf("%w: %d errors occurred: %w", ErrAllSessionsLost, len(errs), errors.Join(errs...))
	}
	if firstLost != nil {
		logger.WithError(firstLost).WithFields(logrus.Fields{
			"lost":    len(errs),
			"workers": workers,
		}).Warn("run finished with reduced parallelism")
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
