package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
	"cookbook/internal/domain/cookbook"
	"cookbook/internal/infrastructure/storage/dberr"
	"cookbook/internal/session"
)

type demo struct {
	name  string
	short string
	run   func(ctx context.Context, a *app) error
}

var demos = []demo{
	{"basics", "Add a dish, save it, change it, save again", demoBasics},
	{"states", "Print the entity state after every step", demoStates},
	{"tracking", "Original values and identity resolution", demoTracking},
	{"attach", "Forget an instance, then update it as a whole", demoAttach},
	{"notracking", "Query without tracking", demoNoTracking},
	{"rawsql", "Raw SQL queries and statements", demoRawSQL},
	{"transactions", "Roll back a transaction after a failing statement", demoTransactions},
	{"expression", "Filter with a composed predicate", demoExpression},
	{"local", "Filter tracked instances in memory", demoLocal},
	{"concurrency", "Two sessions change the same dish", demoConcurrency},
	{"journal", "Show the change history of a dish", demoJournal},
}

// addDish saves a new dish on its own session.
func addDish(ctx context.Context, a *app, title, notes string) (*cookbook.Dish, error) {
	s := a.factory.Open(ctx)
	defer s.Close()

	d := cookbook.NewDish(title, notes)
	if err := s.Add(d); err != nil {
		return nil, err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func notes(d *cookbook.Dish) string {
	if d.Notes == nil {
		return "<nil>"
	}
	return *d.Notes
}

func demoBasics(ctx context.Context, a *app) error {
	s := a.factory.Open(ctx)
	defer s.Close()

	dish := cookbook.NewDish("Foo", "Bar")
	if err := s.Add(dish); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("added %q (id %d)\n", dish.Title, dish.ID)

	dish.Notes = cookbook.Ptr("Baz")
	n, err := s.SaveChanges(ctx)
	if err != nil {
		return err
	}
	a.printf("changed notes to %q, %d statement(s)\n", notes(dish), n)

	porridge := &cookbook.Dish{Title: "Breakfast Porridge", Notes: cookbook.Ptr("This is sooooo gooood"), Stars: cookbook.Ptr(4)}
	porridge.AddIngredient("Rolled oats", "g", decimal.NewFromInt(50))
	porridge.AddIngredient("Milk", "ml", decimal.NewFromInt(250))
	if err := s.Add(porridge); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("added porridge (id %d) with %d ingredients\n", porridge.ID, len(porridge.Ingredients))

	found, err := session.From[*cookbook.Dish](s).Where("title LIKE ?", "%Porridge%").All(ctx)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errors.New("porridge disappeared")
	}
	a.printf("porridge has %d stars\n", *found[0].Stars)

	porridge.Stars = cookbook.Ptr(5)
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("changed porridge stars to %d\n", *porridge.Stars)

	for _, ing := range porridge.Ingredients {
		if err := s.Remove(ing); err != nil {
			return err
		}
	}
	if err := s.Remove(porridge); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("removed porridge, state %s\n", s.State(porridge))
	return nil
}

func demoStates(ctx context.Context, a *app) error {
	s := a.factory.Open(ctx)
	defer s.Close()

	dish := cookbook.NewDish("Foo", "Bar")
	a.printf("new:      %s\n", s.State(dish))

	if err := s.Add(dish); err != nil {
		return err
	}
	a.printf("added:    %s\n", s.State(dish))

	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("saved:    %s\n", s.State(dish))

	dish.Notes = cookbook.Ptr("Baz")
	s.DetectChanges()
	a.printf("modified: %s\n", s.State(dish))
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}

	if err := s.Remove(dish); err != nil {
		return err
	}
	a.printf("removed:  %s\n", s.State(dish))

	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("deleted:  %s\n", s.State(dish))
	return nil
}

func demoTracking(ctx context.Context, a *app) error {
	s := a.factory.Open(ctx)
	defer s.Close()

	dish := cookbook.NewDish("Foo", "Bar")
	if err := s.Add(dish); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	dish.Notes = cookbook.Ptr("Baz")

	entry, err := s.Entry(dish)
	if err != nil {
		return err
	}
	original, _ := entry.OriginalValue("Notes")
	a.printf("notes: current %q, original %v\n", notes(dish), original)

	same, err := session.From[*cookbook.Dish](s).WhereField("ID", dish.ID).Single(ctx)
	if err != nil {
		return err
	}
	a.printf("same session returns the tracked instance: %t (notes %q)\n", same == dish, notes(same))

	other := a.factory.Open(ctx)
	defer other.Close()
	fromDB, err := session.From[*cookbook.Dish](other).WhereField("ID", dish.ID).Single(ctx)
	if err != nil {
		return err
	}
	a.printf("second session reads the stored row: notes %q\n", notes(fromDB))
	return nil
}

func demoAttach(ctx context.Context, a *app) error {
	s := a.factory.Open(ctx)
	defer s.Close()

	dish := cookbook.NewDish("Foo", "Bar")
	if err := s.Add(dish); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}

	if err := s.SetState(dish, entity.Detached); err != nil {
		return err
	}
	a.printf("after detach: %s\n", s.State(dish))

	if err := s.Update(dish); err != nil {
		return err
	}
	a.printf("after update: %s\n", s.State(dish))
	n, err := s.SaveChanges(ctx)
	if err != nil {
		return err
	}
	a.printf("wrote the whole dish, %d statement(s)\n", n)
	return nil
}

func demoNoTracking(ctx context.Context, a *app) error {
	if _, err := addDish(ctx, a, "Foo", "Bar"); err != nil {
		return err
	}

	s := a.factory.Open(ctx)
	defer s.Close()

	dishes, err := session.From[*cookbook.Dish](s).NoTracking().All(ctx)
	if err != nil {
		return err
	}
	a.printf("loaded %d dish(es), first is %s, tracked entries %d\n",
		len(dishes), s.State(dishes[0]), s.Tracker().Len())
	return nil
}

func demoRawSQL(ctx context.Context, a *app) error {
	if _, err := addDish(ctx, a, "Foo", "Baz"); err != nil {
		return err
	}

	s := a.factory.Open(ctx)
	defer s.Close()

	all, err := session.FromSQL[*cookbook.Dish](s, "SELECT * FROM dishes").All(ctx)
	if err != nil {
		return err
	}
	a.printf("raw select: %d dish(es)\n", len(all))

	filter := "%z"
	matched, err := session.FromSQL[*cookbook.Dish](s, "SELECT * FROM dishes WHERE notes LIKE ?", filter).All(ctx)
	if err != nil {
		return err
	}
	a.printf("notes LIKE %q: %d dish(es)\n", filter, len(matched))

	// The filter is a bound value, so this matches nothing instead of dropping the table.
	hostile := "%z'; DROP TABLE dishes; --"
	matched, err = session.FromSQL[*cookbook.Dish](s, "SELECT * FROM dishes WHERE notes LIKE ?", hostile).All(ctx)
	if err != nil {
		return err
	}
	a.printf("hostile filter: %d dish(es)\n", len(matched))

	n, err := s.ExecRaw(ctx, "DELETE FROM dishes WHERE id NOT IN (SELECT dish_id FROM ingredients)")
	if err != nil {
		return err
	}
	a.printf("deleted %d dish(es) without ingredients\n", n)
	return nil
}

func demoTransactions(ctx context.Context, a *app) error {
	s := a.factory.Open(ctx)
	defer s.Close()

	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Close()

	dish := cookbook.NewDish("Foo", "Bar")
	if err := s.Add(dish); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("saved dish %d inside transaction %s\n", dish.ID, tx.ID())

	_, err = s.ExecRaw(ctx,
		"INSERT INTO ingredients (description, unit_of_measure, amount, dish_id) VALUES (?, ?, ?, ?)",
		"Salt", "g", 1, -1)
	if err == nil {
		return tx.Commit(ctx)
	}
	a.printf("something bad happened (%s): %v\n", dberr.ConstraintOf(err), err)
	if err := tx.Rollback(ctx); err != nil {
		return err
	}

	check := a.factory.Open(ctx)
	defer check.Close()
	_, err = session.Find[*cookbook.Dish](ctx, check, dish.ID)
	a.printf("dish %d after rollback: stored %t\n", dish.ID, err == nil)
	if err != nil && !apperror.IsNotFound(err) {
		return err
	}
	return nil
}

func demoExpression(ctx context.Context, a *app) error {
	if _, err := addDish(ctx, a, "Foo", "Bar"); err != nil {
		return err
	}

	s := a.factory.Open(ctx)
	defer s.Close()

	q := session.From[*cookbook.Dish](s).Where("title LIKE ?", "F%").OrderBy("id DESC")
	sql, args, err := q.ToSQL()
	if err != nil {
		return err
	}
	a.printf("%s %v\n", sql, args)

	dishes, err := q.All(ctx)
	if err != nil {
		return err
	}
	a.printf("%d dish(es) starting with F\n", len(dishes))
	return nil
}

func demoLocal(ctx context.Context, a *app) error {
	if _, err := addDish(ctx, a, "Fennel Salad", "Crunchy"); err != nil {
		return err
	}

	s := a.factory.Open(ctx)
	defer s.Close()

	if _, err := session.From[*cookbook.Dish](s).All(ctx); err != nil {
		return err
	}
	pending := cookbook.NewDish("Focaccia", "Not saved yet")
	if err := s.Add(pending); err != nil {
		return err
	}

	local, err := session.Local[*cookbook.Dish](s, `e.title.startsWith("F")`)
	if err != nil {
		return err
	}
	a.printf("%d tracked dish(es) start with F, including unsaved %q\n", len(local), pending.Title)
	return nil
}

func demoConcurrency(ctx context.Context, a *app) error {
	seed, err := addDish(ctx, a, "Foo", "Bar")
	if err != nil {
		return err
	}

	first := a.factory.Open(ctx)
	defer first.Close()
	second := a.factory.Open(ctx)
	defer second.Close()

	var mine, theirs *cookbook.Dish
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		mine, err = session.Find[*cookbook.Dish](gctx, first, seed.ID)
		return err
	})
	g.Go(func() (err error) {
		theirs, err = session.Find[*cookbook.Dish](gctx, second, seed.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	mine.Notes = cookbook.Ptr("Changed by the first session")
	if _, err := first.SaveChanges(ctx); err != nil {
		return err
	}
	a.printf("first session saved\n")

	theirs.Notes = cookbook.Ptr("Changed by the second session")
	_, err = second.SaveChanges(ctx)
	if !apperror.IsConcurrencyConflict(err) {
		return fmt.Errorf("expected a concurrency conflict, got %v", err)
	}
	a.printf("second session: %v\n", err)
	a.printf("second session entry stays %s\n", second.State(theirs))
	return nil
}

func demoJournal(ctx context.Context, a *app) error {
	if a.journal == nil {
		a.printf("journal is disabled\n")
		return nil
	}

	s := a.factory.Open(ctx)
	defer s.Close()

	dish := cookbook.NewDish("Foo", "Bar")
	if err := s.Add(dish); err != nil {
		return err
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}
	dish.Notes = cookbook.Ptr("Baz")
	dish.Stars = cookbook.Ptr(3)
	if _, err := s.SaveChanges(ctx); err != nil {
		return err
	}

	key := strconv.FormatInt(dish.ID, 10)
	history, err := a.journal.History(ctx, a.backend, a.backend.Placeholder(), "Dish", key, 10)
	if err != nil {
		return err
	}
	for _, e := range history {
		a.printf("%s %s %s %s\n", e.CreatedAt.Format("15:04:05.000"), e.Operation, e.EntityType, e.EntityKey)
		for _, c := range e.Changes {
			a.printf("    %s: %v -> %v\n", c.Field, c.Old, c.New)
		}
	}
	return nil
}
