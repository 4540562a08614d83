package recompiler

// pureEngine fetches and decodes every instruction from guest memory.
type pureEngine struct{}

func (pureEngine) run(c *Core) error {
	for !c.stopped {
		if err := c.interpret(); err != nil {
			return err
		}
	}
	return nil
}

func (pureEngine) step(c *Core) error { return c.interpret() }
