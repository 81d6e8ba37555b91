package sqlinline

const QSelectClientState = `--sql 3b0f6a52-9c1e-4d8a-a3f7-58c2e1d904b6
select value
from client_state
where owner_id = $1::text and state_key = $2::text
limit 1;
`

const QUpsertClientState = `--sql a71d2c94-5e08-4b3f-9d61-0c7e4f2ab813
insert into client_state (owner_id, state_key, value, updated_at)
values ($1::text, $2::text, $3::jsonb, now())
on conflict (owner_id, state_key) do update set
    value = excluded.value,
    updated_at = now();
`

const QDeleteClientState = `--sql e4c8b107-26fa-4e95-b0d3-9a15f7c36e28
delete from client_state
where owner_id = $1::text and state_key = $2::text;
`
